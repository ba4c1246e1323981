// Package strategy evaluates SignalContext snapshots against the four
// setups of spec §4.6 and proposes ProposalCards. Strategies are pure
// functions self-gating on absent/stale indicators, registered and
// dispatched through an Engine grounded on internal/strategy/engine.go's
// registry shape.
package strategy

import "perpsignal/internal/model"

// Strategy is a pure function over SignalContext that either proposes a
// card or declines ("generate(ctx) -> ProposalCard | None" in spec §4.6).
type Strategy interface {
	Name() string
	Generate(ctx model.SignalContext) (*model.ProposalCard, bool)
}

// Engine holds the registered strategies and evaluates all of them against
// one SignalContext per tick. The teacher's Engine routes a stream of
// candles to stateful strategies over a channel; here SignalContext is
// already a point-in-time snapshot, so dispatch is a synchronous loop
// instead of a channel consumer.
type Engine struct {
	strategies []Strategy
}

// NewEngine creates an empty strategy engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Strategies returns the registered strategies, in registration order.
func (e *Engine) Strategies() []Strategy {
	return e.strategies
}

// Generate runs every registered strategy against ctx and collects the
// non-absent candidates.
func (e *Engine) Generate(ctx model.SignalContext) []model.ProposalCard {
	cards := make([]model.ProposalCard, 0, len(e.strategies))
	for _, s := range e.strategies {
		if card, ok := s.Generate(ctx); ok && card != nil {
			cards = append(cards, *card)
		}
	}
	return cards
}

// defaultStopFromATR is the generic ATR-based stop spec §4.6 calls for
// when a strategy doesn't override it.
func defaultStopFromATR(side model.Side, entry, atr15m float64) float64 {
	if side == model.SideLong {
		return entry - 1.2*atr15m
	}
	return entry + 1.2*atr15m
}

func sign(f float64) int {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	default:
		return 0
	}
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
