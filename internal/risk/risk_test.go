package risk

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"perpsignal/config"
	"perpsignal/internal/metrics"
)

var (
	sharedMetricsOnce sync.Once
	sharedMetrics     *metrics.Metrics
)

func testMetrics() *metrics.Metrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = metrics.NewMetrics()
	})
	return sharedMetrics
}

func testConfig() *config.Config {
	return &config.Config{
		MaxDailyLossUSDT:            200,
		MaxCardsPerDay:              20,
		CooldownAfterTriggerMinutes: 15,
		KillSwitch:                  false,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "risk_state.json"))
	e, err := NewEngine(testConfig(), store, nil, testMetrics())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEvaluate_PassesWhenAllGatesClear(t *testing.T) {
	e := newTestEngine(t)
	if reason := e.Evaluate("BTCUSDT", 1_000_000); reason != BlockNone {
		t.Fatalf("expected BlockNone, got %q", reason)
	}
}

func TestEvaluate_BlocksOnKillSwitch(t *testing.T) {
	cfg := testConfig()
	cfg.KillSwitch = true
	store := NewFileStore(filepath.Join(t.TempDir(), "risk_state.json"))
	e, err := NewEngine(cfg, store, nil, testMetrics())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if reason := e.Evaluate("BTCUSDT", 1_000_000); reason != BlockKillSwitch {
		t.Fatalf("expected BlockKillSwitch, got %q", reason)
	}
}

func TestEvaluate_BlocksOnMaxCardsPerDay(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCardsPerDay = 1
	store := NewFileStore(filepath.Join(t.TempDir(), "risk_state.json"))
	e, err := NewEngine(cfg, store, nil, testMetrics())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.RecordTrigger("BTCUSDT", 1_000_000); err != nil {
		t.Fatalf("RecordTrigger: %v", err)
	}
	if reason := e.Evaluate("ETHUSDT", 1_000_100); reason != BlockMaxCardsPerDay {
		t.Fatalf("expected BlockMaxCardsPerDay, got %q", reason)
	}
}

func TestEvaluate_BlocksOnMaxDailyLoss(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RecordPnL("BTCUSDT", -250, 1_000_000); err != nil {
		t.Fatalf("RecordPnL: %v", err)
	}
	if reason := e.Evaluate("BTCUSDT", 1_000_100); reason != BlockMaxDailyLoss {
		t.Fatalf("expected BlockMaxDailyLoss, got %q", reason)
	}
}

func TestEvaluate_BlocksOnCooldown(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RecordTrigger("BTCUSDT", 1_000_000); err != nil {
		t.Fatalf("RecordTrigger: %v", err)
	}
	if reason := e.Evaluate("BTCUSDT", 1_000_000+60_000); reason != BlockCooldown {
		t.Fatalf("expected BlockCooldown within the 15m cooldown, got %q", reason)
	}
}

func TestEvaluate_CooldownIsPerSymbol(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RecordTrigger("BTCUSDT", 1_000_000); err != nil {
		t.Fatalf("RecordTrigger: %v", err)
	}
	if reason := e.Evaluate("ETHUSDT", 1_000_100); reason != BlockNone {
		t.Fatalf("expected cooldown to be per-symbol, got %q", reason)
	}
}

func TestEvaluate_DayRolloverResetsCounters(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RecordPnL("BTCUSDT", -250, 1_000_000); err != nil {
		t.Fatalf("RecordPnL: %v", err)
	}
	tomorrow := time.UnixMilli(1_000_000).UTC().AddDate(0, 0, 1)
	if reason := e.Evaluate("BTCUSDT", tomorrow.UnixMilli()); reason != BlockNone {
		t.Fatalf("expected rollover to clear yesterday's loss, got %q", reason)
	}
}

func TestNewEngine_RestoresPersistedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_state.json")
	store := NewFileStore(path)
	e1, err := NewEngine(testConfig(), store, nil, testMetrics())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e1.RecordTrigger("BTCUSDT", 1_000_000); err != nil {
		t.Fatalf("RecordTrigger: %v", err)
	}

	e2, err := NewEngine(testConfig(), NewFileStore(path), nil, testMetrics())
	if err != nil {
		t.Fatalf("NewEngine (reload): %v", err)
	}
	if reason := e2.Evaluate("BTCUSDT", 1_000_000+60_000); reason != BlockCooldown {
		t.Fatalf("expected restored state to still be in cooldown, got %q", reason)
	}
}
