// Package notification provides alert delivery to external channels
// (Telegram, generic webhooks, or the log) for signal-service events and
// cleared proposal cards.
package notification

import (
	"context"
	"fmt"
	"log"

	"perpsignal/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Card is set when the alert
// carries a cleared proposal card; it is nil for plain operational alerts
// (source failover, risk kill switch, clock skew).
type Alert struct {
	Level   AlertLevel          `json:"level"`
	Title   string              `json:"title"`
	Message string              `json:"message"`
	Card    *model.ProposalCard `json:"card,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// CardAdapter wraps a Notifier so it satisfies model.Notifier, the port the
// orchestration layer (internal/signalservice) dispatches cleared cards
// through. Card formatting (HTML, inline actions) lives outside this
// system; this adapter only turns a card into a generic Alert.
type CardAdapter struct {
	Notifier Notifier
}

// SendCard implements model.Notifier.
func (a *CardAdapter) SendCard(ctx context.Context, card model.ProposalCard, htmlText string, inlineActions map[string]string) error {
	msg := htmlText
	if msg == "" {
		msg = fmt.Sprintf("%s %s entry=%.4f stop=%.4f size=%.2f USDT (%s)",
			card.Symbol, card.Side, card.Entry, card.Stop, card.PositionUSDT, card.Strategy)
	}
	return a.Notifier.Send(ctx, Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s", card.Symbol, card.Side),
		Message: msg,
		Card:    &card,
	})
}

// PostJSON implements model.Notifier by delegating to a WebhookNotifier if
// the wrapped Notifier is one; otherwise it is a no-op (the card was
// already delivered via SendCard).
func (a *CardAdapter) PostJSON(ctx context.Context, url string, card model.ProposalCard) error {
	if wh, ok := a.Notifier.(*WebhookNotifier); ok {
		return wh.PostCard(ctx, url, card)
	}
	return nil
}
