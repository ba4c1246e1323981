package model

import "context"

// Notifier is the downstream collaborator the core hands a cleared
// ProposalCard to. Formatting (HTML, inline actions) and the chat
// transport itself are out of scope for this system — see spec §6.
type Notifier interface {
	// SendCard delivers a cleared proposal. htmlText and inlineActions are
	// produced by the (out-of-scope) formatting layer; the core only
	// supplies the card.
	SendCard(ctx context.Context, card ProposalCard, htmlText string, inlineActions map[string]string) error

	// PostJSON fire-and-forgets the raw card to an external URL.
	PostJSON(ctx context.Context, url string, card ProposalCard) error
}

// SnapshotStore persists and recovers a small JSON blob of RiskState.
// Implemented by internal/risk.FileStore (temp-file-plus-rename).
type SnapshotStore interface {
	SaveJSON(data []byte) error
	ReadLatestJSON() ([]byte, error)
}
