package strategy

import (
	"testing"

	"perpsignal/internal/model"
)

type stubStrategy struct {
	name string
	card *model.ProposalCard
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Generate(ctx model.SignalContext) (*model.ProposalCard, bool) {
	if s.card == nil {
		return nil, false
	}
	return s.card, true
}

func TestEngine_GenerateCollectsOnlyNonAbsentCandidates(t *testing.T) {
	e := NewEngine()
	e.Register(&stubStrategy{name: "a", card: &model.ProposalCard{Strategy: "a"}})
	e.Register(&stubStrategy{name: "b", card: nil})
	e.Register(&stubStrategy{name: "c", card: &model.ProposalCard{Strategy: "c"}})

	cards := e.Generate(model.SignalContext{})
	if len(cards) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cards))
	}
	if cards[0].Strategy != "a" || cards[1].Strategy != "c" {
		t.Fatalf("unexpected candidates: %+v", cards)
	}
}

func TestEngine_StrategiesReturnsRegistrationOrder(t *testing.T) {
	e := NewEngine()
	e.Register(&stubStrategy{name: "a"})
	e.Register(&stubStrategy{name: "b"})
	names := e.Strategies()
	if len(names) != 2 || names[0].Name() != "a" || names[1].Name() != "b" {
		t.Fatalf("unexpected strategies: %+v", names)
	}
}

func TestDefaultStopFromATR(t *testing.T) {
	long := defaultStopFromATR(model.SideLong, 100, 10)
	if long != 88 {
		t.Fatalf("expected long stop 88, got %v", long)
	}
	short := defaultStopFromATR(model.SideShort, 100, 10)
	if short != 112 {
		t.Fatalf("expected short stop 112, got %v", short)
	}
}

func TestSign(t *testing.T) {
	if sign(1.5) != 1 || sign(-1.5) != -1 || sign(0) != 0 {
		t.Fatal("sign() mismatch")
	}
}

func TestClampConfidence(t *testing.T) {
	if clampConfidence(-5) != 0 || clampConfidence(150) != 100 || clampConfidence(42) != 42 {
		t.Fatal("clampConfidence() mismatch")
	}
}
