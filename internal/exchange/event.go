package exchange

import "perpsignal/internal/model"

// EventKind discriminates which field of MarketEvent is populated.
type EventKind int

const (
	EventPrice EventKind = iota
	EventCandle
	EventFunding
	EventOpenInterest
)

// MarketEvent is the normalized envelope both the WS and REST sources emit,
// so SourceManager and DataStore don't need to care which transport a
// given update came from.
type MarketEvent struct {
	Kind    EventKind
	Price   model.PriceTick
	Candle  model.Candle1m
	Funding model.FundingSnapshot
	OI      model.OpenInterestSnapshot
}
