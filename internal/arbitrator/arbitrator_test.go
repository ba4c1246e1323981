package arbitrator

import (
	"testing"

	"perpsignal/config"
	"perpsignal/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		DedupeWindowSeconds: 300,
		EntrySimilarPct:     0.003,
		StopSimilarPct:      0.003,
	}
}

func TestChooseBest_NoCandidates(t *testing.T) {
	a := New(testConfig())
	if _, ok := a.ChooseBest("BTCUSDT", nil, 1000); ok {
		t.Fatal("expected no winner with no candidates")
	}
}

func TestChooseBest_DedupeWindowBlocks(t *testing.T) {
	a := New(testConfig())
	a.RecordDispatch("BTCUSDT", 1_000_000)

	candidates := []model.ProposalCard{
		{Symbol: "BTCUSDT", Side: model.SideLong, Entry: 100, Stop: 90, Strategy: "a"},
	}
	if _, ok := a.ChooseBest("BTCUSDT", candidates, 1_100_000); ok {
		t.Fatal("expected dedupe window to block a card dispatched 100s ago with a 300s window")
	}
}

func TestChooseBest_DedupeWindowExpires(t *testing.T) {
	a := New(testConfig())
	a.RecordDispatch("BTCUSDT", 1_000_000)

	candidates := []model.ProposalCard{
		{Symbol: "BTCUSDT", Side: model.SideLong, Entry: 100, Stop: 90, Strategy: "a"},
	}
	if _, ok := a.ChooseBest("BTCUSDT", candidates, 1_000_000+301_000); !ok {
		t.Fatal("expected a winner once the dedupe window has elapsed")
	}
}

func TestChooseBest_HigherPriorityWins(t *testing.T) {
	a := New(testConfig())
	candidates := []model.ProposalCard{
		{Symbol: "BTCUSDT", Side: model.SideLong, Entry: 100, Stop: 90, Priority: 1, Confidence: 90, Strategy: "a"},
		{Symbol: "BTCUSDT", Side: model.SideShort, Entry: 200, Stop: 220, Priority: 3, Confidence: 10, Strategy: "b"},
	}
	winner, ok := a.ChooseBest("BTCUSDT", candidates, 1000)
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Strategy != "b" {
		t.Fatalf("expected higher-priority card 'b' to win, got %q", winner.Strategy)
	}
}

func TestChooseBest_EqualPriorityTieBreaksOnConfidence(t *testing.T) {
	a := New(testConfig())
	candidates := []model.ProposalCard{
		{Symbol: "BTCUSDT", Side: model.SideLong, Entry: 100, Stop: 90, Priority: 1, Confidence: 50, TTLMinutes: 30, Strategy: "zzz"},
		{Symbol: "BTCUSDT", Side: model.SideShort, Entry: 500, Stop: 520, Priority: 1, Confidence: 80, TTLMinutes: 30, Strategy: "aaa"},
	}
	winner, ok := a.ChooseBest("BTCUSDT", candidates, 1000)
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Strategy != "aaa" {
		t.Fatalf("expected higher-confidence card 'aaa' to win, got %q", winner.Strategy)
	}
}

func TestChooseBest_SimilarCardsCollapseToBest(t *testing.T) {
	a := New(testConfig())
	candidates := []model.ProposalCard{
		{Symbol: "BTCUSDT", Side: model.SideLong, Entry: 100, Stop: 90, Priority: 1, Confidence: 40, Strategy: "a"},
		{Symbol: "BTCUSDT", Side: model.SideLong, Entry: 100.1, Stop: 90.1, Priority: 1, Confidence: 70, Strategy: "b"},
	}
	winner, ok := a.ChooseBest("BTCUSDT", candidates, 1000)
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Strategy != "b" {
		t.Fatalf("expected the similar cluster to collapse to the higher-confidence card 'b', got %q", winner.Strategy)
	}
}

func TestChooseBest_DissimilarCardsBothSurviveAndBestWins(t *testing.T) {
	a := New(testConfig())
	candidates := []model.ProposalCard{
		{Symbol: "BTCUSDT", Side: model.SideLong, Entry: 100, Stop: 90, Priority: 1, Confidence: 40, Strategy: "a"},
		{Symbol: "BTCUSDT", Side: model.SideLong, Entry: 150, Stop: 140, Priority: 1, Confidence: 70, Strategy: "b"},
	}
	winner, ok := a.ChooseBest("BTCUSDT", candidates, 1000)
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Strategy != "b" {
		t.Fatalf("expected the higher-confidence dissimilar card 'b' to win, got %q", winner.Strategy)
	}
}
