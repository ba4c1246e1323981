package model

// FundingSnapshot is the premium-index composite: mark price plus the
// latest funding rate for a perpetual future.
type FundingSnapshot struct {
	Symbol          string  `json:"symbol"`
	MarkPrice       float64 `json:"mark_price"`
	LastFundingRate float64 `json:"last_funding_rate"`
	NextFundingTime int64   `json:"next_funding_time_ms"`
	EventTimeMs     int64   `json:"event_time_ms"`
}

// OpenInterestSnapshot is a single open-interest observation.
type OpenInterestSnapshot struct {
	Symbol      string  `json:"symbol"`
	OIValue     float64 `json:"oi_value"`
	EventTimeMs int64   `json:"event_time_ms"`
}
