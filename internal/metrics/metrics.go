// Package metrics exposes Prometheus counters/gauges/histograms for the
// signal service plus a /healthz JSON endpoint, mirroring the teacher's
// metrics+health server pattern (cmd/mdengine's metrics.Server).
package metrics

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal service.
type Metrics struct {
	WSReconnectsTotal    prometheus.Counter
	RESTPollsTotal       prometheus.Counter
	RESTPollErrorsTotal  prometheus.Counter
	SourceFailoversTotal *prometheus.CounterVec // labels: from, to
	ClockSkewMs          prometheus.Gauge
	RingBufOverflowTotal prometheus.Counter

	StrategiesEvaluatedTotal *prometheus.CounterVec // labels: strategy
	CardsProposedTotal       *prometheus.CounterVec // labels: strategy
	CardsWinnerTotal         *prometheus.CounterVec // labels: strategy
	CardsCollapsedTotal      prometheus.Counter
	CardsDispatchedTotal     prometheus.Counter

	RiskBlocksTotal *prometheus.CounterVec // labels: reason

	CacheCircuitState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CacheCircuitTrips prometheus.Counter
	CacheWriteDur     prometheus.Histogram

	JournalCommitDur      prometheus.Histogram
	PnLLedgerWriteErrors  prometheus.Counter
	TickToSignalLatency   prometheus.Histogram
	DataStoreStaleSymbols prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		WSReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalservice_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		RESTPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalservice_rest_polls_total",
			Help: "Total REST polling fetches issued by the fallback source",
		}),
		RESTPollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalservice_rest_poll_errors_total",
			Help: "REST polling fetches that returned an error",
		}),
		SourceFailoversTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalservice_source_failovers_total",
			Help: "Market-data source transitions (ws->rest or rest->ws)",
		}, []string{"from", "to"}),
		ClockSkewMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalservice_clock_skew_ms",
			Help: "Observed skew between exchange server time and local clock",
		}),
		RingBufOverflowTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalservice_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped samples)",
		}),

		StrategiesEvaluatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalservice_strategies_evaluated_total",
			Help: "Strategy.Generate invocations, by strategy",
		}, []string{"strategy"}),
		CardsProposedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalservice_cards_proposed_total",
			Help: "Proposal cards emitted by a strategy before arbitration",
		}, []string{"strategy"}),
		CardsWinnerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalservice_cards_winner_total",
			Help: "Proposal cards that won arbitration, by strategy",
		}, []string{"strategy"}),
		CardsCollapsedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalservice_cards_collapsed_total",
			Help: "Proposal cards that did not win arbitration (candidates minus one per arbitrated symbol-tick, also when the dedupe window suppresses the winner)",
		}),
		CardsDispatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalservice_cards_dispatched_total",
			Help: "Proposal cards that cleared risk gates and were dispatched",
		}),

		RiskBlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalservice_risk_blocks_total",
			Help: "Cards blocked by the risk engine, by gate reason",
		}, []string{"reason"}),

		CacheCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalservice_cache_circuit_breaker_state",
			Help: "Warm cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CacheCircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalservice_cache_circuit_breaker_trips_total",
			Help: "Times the warm cache circuit breaker tripped open",
		}),
		CacheWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalservice_cache_write_duration_seconds",
			Help:    "Redis warm-cache write latency",
			Buckets: prometheus.DefBuckets,
		}),

		JournalCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalservice_journal_commit_duration_seconds",
			Help:    "SQLite card-journal commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		PnLLedgerWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalservice_pnl_ledger_write_errors_total",
			Help: "Errors appending to the PnL CSV ledger",
		}),
		TickToSignalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalservice_tick_to_signal_latency_seconds",
			Help:    "Latency from tick ingest to signal-service tick() completion",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		DataStoreStaleSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalservice_datastore_stale_symbols",
			Help: "Number of tracked symbols whose price or kline data is currently stale",
		}),
	}

	prometheus.MustRegister(
		m.WSReconnectsTotal,
		m.RESTPollsTotal,
		m.RESTPollErrorsTotal,
		m.SourceFailoversTotal,
		m.ClockSkewMs,
		m.RingBufOverflowTotal,
		m.StrategiesEvaluatedTotal,
		m.CardsProposedTotal,
		m.CardsWinnerTotal,
		m.CardsCollapsedTotal,
		m.CardsDispatchedTotal,
		m.RiskBlocksTotal,
		m.CacheCircuitState,
		m.CacheCircuitTrips,
		m.CacheWriteDur,
		m.JournalCommitDur,
		m.PnLLedgerWriteErrors,
		m.TickToSignalLatency,
		m.DataStoreStaleSymbols,
	)

	return m
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
