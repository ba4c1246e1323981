package model

// RiskState is the persisted state RiskEngine gates on. It is rewritten
// atomically (temp file + rename) on every update — see internal/risk/state.go.
type RiskState struct {
	DayKey           string           `json:"day_key"` // UTC date, "2006-01-02"
	CardsToday       int              `json:"cards_today"`
	RealizedPnLToday float64          `json:"realized_pnl_today"`
	LastTriggerAtMs  map[string]int64 `json:"last_trigger_at_ms"`
}

// NewRiskState returns a zeroed RiskState for the given day key.
func NewRiskState(dayKey string) RiskState {
	return RiskState{
		DayKey:          dayKey,
		LastTriggerAtMs: make(map[string]int64),
	}
}
