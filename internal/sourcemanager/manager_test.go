package sourcemanager

import (
	"sync"
	"testing"
	"time"

	"perpsignal/config"
	"perpsignal/internal/datastore"
	"perpsignal/internal/metrics"
	"perpsignal/internal/model"
	"perpsignal/pkg/binancefeed"
)

// sharedMetrics avoids re-registering the same Prometheus collectors
// across subtests — NewMetrics panics on a second MustRegister of the
// same metric name against the default registry.
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

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := &config.Config{
		Symbols:                []string{"BTCUSDT"},
		DataSourcePreferred:    "ws",
		WSBackoffMinMs:         500,
		WSBackoffMaxMs:         30000,
		WSRecoverGoodTicks:     5,
		RESTKlinePollSeconds:   10,
		RESTFundingPollSeconds: 30,
		RESTOIPollSeconds:      30,
		KlineLimit:             100,
		StateSyncKlines:        20,
		ClockSkewDegradedMs:    5000,
	}
	ds := datastore.New(cfg.Symbols, 30_000, 180_000)
	health := metrics.NewHealthStatus()
	feed := binancefeed.NewREST("", "")
	return New(cfg, ds, testMetrics(), health, feed, nil)
}

func TestNew_DefaultsToPreferredMode(t *testing.T) {
	mgr := testManager(t)
	if mgr.mode != "ws" {
		t.Fatalf("expected default mode ws, got %s", mgr.mode)
	}
}

func TestNew_FallsBackToWSOnInvalidPreference(t *testing.T) {
	cfg := &config.Config{Symbols: []string{"BTCUSDT"}, DataSourcePreferred: "nonsense"}
	ds := datastore.New(cfg.Symbols, 30_000, 180_000)
	health := metrics.NewHealthStatus()
	feed := binancefeed.NewREST("", "")
	mgr := New(cfg, ds, testMetrics(), health, feed, nil)
	if mgr.mode != "ws" {
		t.Fatalf("expected fallback to ws for invalid preference, got %s", mgr.mode)
	}
}

func TestSwitchMode_NoopWhenSame(t *testing.T) {
	mgr := testManager(t)
	before := mgr.mode
	mgr.switchMode(before)
	if mgr.mode != before {
		t.Fatalf("switching to the same mode should be a no-op")
	}
}

func TestSwitchMode_UpdatesModeAndHealth(t *testing.T) {
	mgr := testManager(t)
	mgr.switchMode("rest")
	if mgr.mode != "rest" {
		t.Fatalf("expected mode rest, got %s", mgr.mode)
	}
	if mgr.health.SourceMode != "rest" {
		t.Fatalf("expected health source mode rest, got %s", mgr.health.SourceMode)
	}
}

// testManagerWithFreshness builds a Manager over a DataStore with tight,
// explicit staleness windows, so Refresh tests don't depend on
// testManager's deliberately generous (recovery-probe-oriented) defaults.
func testManagerWithFreshness(t *testing.T, staleSeconds int64, klineStaleMs int64) *Manager {
	t.Helper()
	cfg := &config.Config{Symbols: []string{"BTCUSDT"}, DataSourcePreferred: "ws"}
	ds := datastore.New(cfg.Symbols, staleSeconds, klineStaleMs)
	health := metrics.NewHealthStatus()
	feed := binancefeed.NewREST("", "")
	return New(cfg, ds, testMetrics(), health, feed, nil)
}

func TestRefresh_FailsOverToRestOnStalePrice(t *testing.T) {
	mgr := testManagerWithFreshness(t, 30, 180_000)
	mgr.ds.UpdatePrice(model.PriceTick{Symbol: "BTCUSDT", Price: 100, EventTimeMs: 0})

	priceFresh, _ := mgr.Refresh("BTCUSDT", time.UnixMilli(60_000))
	if priceFresh {
		t.Fatal("expected price to be reported stale 60s after the last tick against a 30s window")
	}
	if mgr.mode != "rest" {
		t.Fatalf("expected stale price to trigger failover to rest, got mode=%s", mgr.mode)
	}
}

func TestRefresh_FailsOverToRestOnStaleKline(t *testing.T) {
	mgr := testManagerWithFreshness(t, 3_600, 120_000)
	now := time.Now()
	mgr.ds.UpdatePrice(model.PriceTick{Symbol: "BTCUSDT", Price: 100, EventTimeMs: now.UnixMilli()})
	mgr.ds.AppendCandle("BTCUSDT", model.Candle1m{
		Symbol: "BTCUSDT", OpenTime: now.Add(-time.Hour).UnixMilli(), CloseTime: now.Add(-time.Hour + time.Minute).UnixMilli(),
		Open: 100, High: 101, Low: 99, Close: 100, IsClosed: true,
	})

	_, klineFresh := mgr.Refresh("BTCUSDT", now)
	if klineFresh {
		t.Fatal("expected kline to be reported stale when the last close was an hour ago against a 120s window")
	}
	if mgr.mode != "rest" {
		t.Fatalf("expected stale kline to trigger failover to rest, got mode=%s", mgr.mode)
	}
}

func TestRefresh_NoFailoverWhenBothFresh(t *testing.T) {
	mgr := testManagerWithFreshness(t, 30, 180_000)
	now := time.Now()
	mgr.ds.UpdatePrice(model.PriceTick{Symbol: "BTCUSDT", Price: 100, EventTimeMs: now.UnixMilli()})
	mgr.ds.AppendCandle("BTCUSDT", model.Candle1m{
		Symbol: "BTCUSDT", OpenTime: now.Add(-time.Minute).UnixMilli(), CloseTime: now.UnixMilli(),
		Open: 100, High: 101, Low: 99, Close: 100, IsClosed: true,
	})

	priceFresh, klineFresh := mgr.Refresh("BTCUSDT", now)
	if !priceFresh || !klineFresh {
		t.Fatalf("expected both fresh, got price=%v kline=%v", priceFresh, klineFresh)
	}
	if mgr.mode != "ws" {
		t.Fatalf("expected mode to remain ws when both are fresh, got %s", mgr.mode)
	}
}

func TestRefresh_NoopWhenAlreadyOnREST(t *testing.T) {
	mgr := testManagerWithFreshness(t, 30, 180_000)
	mgr.switchMode("rest")
	mgr.ds.UpdatePrice(model.PriceTick{Symbol: "BTCUSDT", Price: 100, EventTimeMs: 0})

	mgr.Refresh("BTCUSDT", time.UnixMilli(60_000))
	if mgr.mode != "rest" {
		t.Fatalf("expected mode to remain rest, got %s", mgr.mode)
	}
}
