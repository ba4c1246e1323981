// Package risk gates dispatch of a chosen ProposalCard against a
// kill-switch, daily card/loss limits, and a per-symbol cooldown, and
// persists the state those gates depend on.
package risk

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"perpsignal/config"
	"perpsignal/internal/metrics"
	"perpsignal/internal/model"
)

// BlockReason names why RiskEngine.Evaluate refused a card.
type BlockReason string

const (
	BlockNone           BlockReason = ""
	BlockKillSwitch     BlockReason = "kill_switch"
	BlockMaxCardsPerDay BlockReason = "max_cards_per_day"
	BlockMaxDailyLoss   BlockReason = "max_daily_loss"
	BlockCooldown       BlockReason = "cooldown"
)

// Engine gates dispatch decisions and owns the persisted RiskState.
type Engine struct {
	cfg     *config.Config
	store   model.SnapshotStore
	ledger  *PnLLedger
	metrics *metrics.Metrics

	mu    sync.Mutex
	state model.RiskState
}

// NewEngine loads existing state from store (if any) or starts fresh
// for today's UTC day key. ledger may be nil, in which case RecordPnL
// only updates persisted state without an audit trail.
func NewEngine(cfg *config.Config, store model.SnapshotStore, ledger *PnLLedger, m *metrics.Metrics) (*Engine, error) {
	e := &Engine{cfg: cfg, store: store, ledger: ledger, metrics: m}

	data, err := store.ReadLatestJSON()
	if err != nil {
		return nil, fmt.Errorf("risk: load state: %w", err)
	}
	if data == nil {
		e.state = model.NewRiskState(dayKey(time.Now()))
		return e, nil
	}
	var s model.RiskState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("risk: decode state: %w", err)
	}
	if s.LastTriggerAtMs == nil {
		s.LastTriggerAtMs = make(map[string]int64)
	}
	e.state = s
	return e, nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Evaluate runs the ordered gate checks of spec §4.8 against now (ms
// epoch) and returns the block reason, or BlockNone if the card may be
// dispatched.
func (e *Engine) Evaluate(symbol string, nowMs int64) BlockReason {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverLocked(nowMs)

	reason := e.checkLocked(symbol, nowMs)
	if reason != BlockNone && e.metrics != nil {
		e.metrics.RiskBlocksTotal.WithLabelValues(string(reason)).Inc()
	}
	return reason
}

func (e *Engine) checkLocked(symbol string, nowMs int64) BlockReason {
	if e.cfg.KillSwitch {
		return BlockKillSwitch
	}
	if e.state.CardsToday >= e.cfg.MaxCardsPerDay {
		return BlockMaxCardsPerDay
	}
	if e.state.RealizedPnLToday <= -e.cfg.MaxDailyLossUSDT {
		return BlockMaxDailyLoss
	}
	if last, ok := e.state.LastTriggerAtMs[symbol]; ok {
		cooldownMs := int64(e.cfg.CooldownAfterTriggerMinutes) * 60_000
		if nowMs-last < cooldownMs {
			return BlockCooldown
		}
	}
	return BlockNone
}

// rolloverLocked resets the daily counters when the UTC day has
// changed since state was last touched. Caller holds e.mu.
func (e *Engine) rolloverLocked(nowMs int64) {
	today := dayKey(time.UnixMilli(nowMs))
	if e.state.DayKey != today {
		e.state.DayKey = today
		e.state.CardsToday = 0
		e.state.RealizedPnLToday = 0
	}
}

// RecordTrigger marks symbol as having just been dispatched: increments
// today's card count, stamps the cooldown clock, and persists state.
// Call only after Evaluate returned BlockNone for the same tick.
func (e *Engine) RecordTrigger(symbol string, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverLocked(nowMs)
	e.state.CardsToday++
	e.state.LastTriggerAtMs[symbol] = nowMs

	return e.persistLocked()
}

// RecordPnL folds a realized P&L event into today's running total,
// persists state, and appends an audit row to the PnL ledger if one is
// configured. Out-of-band callers (e.g. an external fill reporter)
// invoke this independently of the tick loop.
func (e *Engine) RecordPnL(symbol string, usdt float64, nowMs int64) error {
	e.mu.Lock()
	e.rolloverLocked(nowMs)
	e.state.RealizedPnLToday += usdt
	err := e.persistLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if e.ledger != nil {
		return e.ledger.RecordPnL(symbol, usdt, nowMs)
	}
	return nil
}

// Snapshot returns a copy of the current risk state, for diagnostics.
func (e *Engine) Snapshot() model.RiskState {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := e.state
	cp.LastTriggerAtMs = make(map[string]int64, len(e.state.LastTriggerAtMs))
	for k, v := range e.state.LastTriggerAtMs {
		cp.LastTriggerAtMs[k] = v
	}
	return cp
}

func (e *Engine) persistLocked() error {
	data, err := json.Marshal(e.state)
	if err != nil {
		return fmt.Errorf("risk: encode state: %w", err)
	}
	return e.store.SaveJSON(data)
}
