package model

// PriceTick is a single best-bid/ask (book-ticker) price observation.
type PriceTick struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	EventTimeMs    int64   `json:"event_time_ms"`
	ReceivedTimeMs int64   `json:"received_time_ms"`
}

// Key returns the symbol this tick belongs to.
func (t PriceTick) Key() string { return t.Symbol }
