// Package sourcemanager owns exactly one active market-data transport (WS
// or REST) at a time and fails over between them. The teacher's
// cmd/mdengine main.go does the WS connect/reconnect/resync dance inline
// in its production goroutine; here that responsibility is pulled out into
// a standalone component with an explicit mode rather than an inline retry
// loop, since this system needs the same failover behavior outside market
// hours and without a fixed login/close schedule to hang the loop off of.
package sourcemanager

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"perpsignal/config"
	"perpsignal/internal/datastore"
	"perpsignal/internal/exchange"
	restsource "perpsignal/internal/exchange/rest"
	wsingest "perpsignal/internal/exchange/ws"
	"perpsignal/internal/metrics"
	"perpsignal/pkg/binancefeed"
)

const wsFailoverThreshold = 3

// Manager supervises WS/REST ingestion, applies incoming events to a
// DataStore, and tracks failover/recovery and clock-sanity state for
// /healthz and Prometheus.
//
// Recovery back to WS after a failover mirrors the teacher's
// closedetector.Detector observe-until-stable shape: instead of watching
// price until it stops moving, Manager watches consecutive good WS ticks
// from a background probe connection until WSRecoverGoodTicks is reached,
// then switches back.
type Manager struct {
	cfg     *config.Config
	ds      *datastore.DataStore
	metrics *metrics.Metrics
	health  *metrics.HealthStatus

	ws    *wsingest.Ingest
	rst   *restsource.Client
	feed  *binancefeed.REST
	cache *WarmCache

	mu           sync.Mutex
	mode         string // "ws" or "rest"
	activeCancel context.CancelFunc // cancels the running runWS session, if any

	eventCh chan exchange.MarketEvent
}

// New builds a Manager wired to ds for event application, feed for REST
// calls (backfill, server time, polling), and cache as an optional
// best-effort warm cache consulted during state-sync (nil disables it).
func New(cfg *config.Config, ds *datastore.DataStore, m *metrics.Metrics, health *metrics.HealthStatus, feed *binancefeed.REST, cache *WarmCache) *Manager {
	ws := wsingest.New(wsingest.Config{
		Symbols:    cfg.Symbols,
		BackoffMin: time.Duration(cfg.WSBackoffMinMs) * time.Millisecond,
		BackoffMax: time.Duration(cfg.WSBackoffMaxMs) * time.Millisecond,
	})
	rst := restsource.New(restsource.Config{
		Symbols:             cfg.Symbols,
		KlinePollInterval:   time.Duration(cfg.RESTKlinePollSeconds) * time.Second,
		FundingPollInterval: time.Duration(cfg.RESTFundingPollSeconds) * time.Second,
		OIPollInterval:      time.Duration(cfg.RESTOIPollSeconds) * time.Second,
		KlineLimit:          cfg.KlineLimit,
	}, feed)

	mode := cfg.DataSourcePreferred
	if mode != "ws" && mode != "rest" {
		mode = "ws"
	}

	return &Manager{
		cfg:     cfg,
		ds:      ds,
		metrics: m,
		health:  health,
		ws:      ws,
		rst:     rst,
		feed:    feed,
		cache:   cache,
		mode:    mode,
		eventCh: make(chan exchange.MarketEvent, 2000),
	}
}

// Run starts ingestion, event application, and clock sanity checks. Blocks
// until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.health.SetSymbols(m.cfg.Symbols)

	go m.consumeEvents(ctx)
	go m.clockSanityLoop(ctx)
	if m.cache != nil {
		go m.cacheHealthLoop(ctx)
	}

	m.superviseSource(ctx)
}

// superviseSource runs whichever source is active, looping back to pick up
// a mode switch whenever the active source's Start call returns.
func (m *Manager) superviseSource(ctx context.Context) {
	for ctx.Err() == nil {
		m.mu.Lock()
		mode := m.mode
		m.mu.Unlock()

		if mode == "ws" {
			m.runWS(ctx)
		} else {
			m.runREST(ctx)
		}
	}
}

func (m *Manager) runWS(ctx context.Context) {
	wsCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.activeCancel = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.activeCancel = nil
		m.mu.Unlock()
	}()

	var reconnects int32
	resetTicker := time.NewTicker(time.Minute)
	defer resetTicker.Stop()
	go func() {
		for {
			select {
			case <-wsCtx.Done():
				return
			case <-resetTicker.C:
				atomic.StoreInt32(&reconnects, 0)
			}
		}
	}()

	m.ws.OnReconnect = func() {
		m.metrics.WSReconnectsTotal.Inc()
		m.health.SetWSConnected(false)
		if atomic.AddInt32(&reconnects, 1) >= wsFailoverThreshold {
			log.Printf("[sourcemanager] %d WS reconnects within a minute, failing over to rest", wsFailoverThreshold)
			m.switchMode("rest")
			cancel()
		}
	}
	m.ws.OnStreamError = func(err error) {
		log.Printf("[sourcemanager] ws stream error: %v", err)
	}

	m.health.SetWSConnected(true)
	m.health.SetSourceMode("ws")
	if err := m.ws.Start(wsCtx, m.eventCh); err != nil {
		log.Printf("[sourcemanager] ws ingest error: %v", err)
	}
	m.health.SetWSConnected(false)
}

func (m *Manager) runREST(ctx context.Context) {
	restCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.health.SetSourceMode("rest")
	m.rst.OnPollError = func(err error) {
		m.metrics.RESTPollErrorsTotal.Inc()
		log.Printf("[sourcemanager] rest poll error: %v", err)
	}

	m.syncStateFromREST(restCtx)
	go m.recoveryProbe(restCtx, cancel)

	m.rst.Start(restCtx, m.eventCh)
}

// syncStateFromREST backfills recent closed candles on entry to rest mode
// (and again on recovery back to ws), so strategies don't evaluate against
// a gap left by whatever outage triggered the failover.
func (m *Manager) syncStateFromREST(ctx context.Context) {
	for _, symbol := range m.cfg.Symbols {
		if m.cache != nil {
			if cached, ok := m.cache.ReadCandles(ctx, symbol); ok && len(cached) > 0 {
				n := m.ds.MergeKlines(symbol, cached)
				log.Printf("[sourcemanager] state sync merged %d/%d cached candles for %s", n, len(cached), symbol)
			}
		}

		candles, err := m.rst.Backfill(ctx, symbol, m.cfg.StateSyncKlines)
		if err != nil {
			log.Printf("[sourcemanager] state sync backfill failed for %s: %v", symbol, err)
			continue
		}
		n := m.ds.MergeKlines(symbol, candles)
		log.Printf("[sourcemanager] state sync merged %d/%d rest candles for %s", n, len(candles), symbol)

		if m.cache != nil {
			if err := m.cache.WriteCandles(ctx, symbol, candles); err != nil {
				log.Printf("[sourcemanager] cache write failed for %s: %v", symbol, err)
			}
		}
	}
}

// recoveryProbe periodically opens a short-lived WS connection while rest
// mode is active and counts consecutive good ticks. Once the count reaches
// WSRecoverGoodTicks it switches the manager back to ws and cancels the
// rest context, the same stability-then-trigger shape as closedetector's
// Observe loop applied to reconnection quality instead of price stability.
func (m *Manager) recoveryProbe(ctx context.Context, stopREST context.CancelFunc) {
	interval := time.Duration(m.cfg.WSBackoffMinMs) * time.Millisecond * 10
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		good := m.probeOnce(ctx)
		if good >= m.cfg.WSRecoverGoodTicks {
			log.Printf("[sourcemanager] ws recovery probe observed %d good ticks, switching back to ws", good)
			m.syncStateFromREST(ctx)
			m.switchMode("ws")
			stopREST()
			return
		}
		log.Printf("[sourcemanager] ws recovery probe saw %d/%d good ticks, staying on rest", good, m.cfg.WSRecoverGoodTicks)
	}
}

func (m *Manager) probeOnce(ctx context.Context) int {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	probe := wsingest.New(wsingest.Config{
		Symbols:    m.cfg.Symbols,
		BackoffMin: time.Duration(m.cfg.WSBackoffMinMs) * time.Millisecond,
		BackoffMax: time.Duration(m.cfg.WSBackoffMaxMs) * time.Millisecond,
	})
	probe.OnStreamError = func(error) {}

	probeCh := make(chan exchange.MarketEvent, 256)
	done := make(chan struct{})
	go func() {
		probe.Start(probeCtx, probeCh)
		close(done)
	}()

	good := 0
	for {
		select {
		case <-done:
			return good
		case ev := <-probeCh:
			if ev.Kind != exchange.EventPrice {
				continue
			}
			if time.Now().UnixMilli()-ev.Price.EventTimeMs <= int64(m.cfg.StaleSeconds)*1000 {
				good++
			} else {
				good = 0
			}
			if good >= m.cfg.WSRecoverGoodTicks {
				cancel()
			}
		}
	}
}

// Refresh checks one symbol's price/kline freshness against the
// configured staleness windows and triggers a WS->REST failover if either
// is stale while WS is the active mode, covering spec's failover criteria
// 2 and 3 (stream failures are handled in runWS, which fails over after
// wsFailoverThreshold reconnects within a minute; its OnStreamError only
// logs). SignalService calls this
// once per symbol at the top of each tick, before building SignalContext,
// so the returned flags can be used there too if the caller wants them.
func (m *Manager) Refresh(symbol string, now time.Time) (priceFresh, klineFresh bool) {
	priceFresh, klineFresh = m.ds.Freshness(symbol, now.UnixMilli())

	m.mu.Lock()
	mode := m.mode
	m.mu.Unlock()
	if mode != "ws" {
		return priceFresh, klineFresh
	}

	switch {
	case !priceFresh:
		m.failover(symbol, now, "price_stale")
	case !klineFresh:
		m.failover(symbol, now, "kline_stale")
	}
	return priceFresh, klineFresh
}

// failover moves the manager from ws to rest mode for the given reason and
// unblocks the runWS goroutine so superviseSource can pick up runREST.
// No-op if ws isn't the active mode (another symbol's check, or a
// concurrent OnReconnect-triggered failover, already switched it).
func (m *Manager) failover(symbol string, now time.Time, reason string) {
	m.mu.Lock()
	from := m.mode
	if from != "ws" {
		m.mu.Unlock()
		return
	}
	m.mode = "rest"
	cancel := m.activeCancel
	m.mu.Unlock()

	m.metrics.SourceFailoversTotal.WithLabelValues(from, "rest").Inc()
	m.health.SetSourceMode("rest")
	log.Printf("[sourcemanager] mode=%s->rest reason=%s symbol=%s now=%d", from, reason, symbol, now.UnixMilli())
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) switchMode(to string) {
	m.mu.Lock()
	from := m.mode
	if from == to {
		m.mu.Unlock()
		return
	}
	m.mode = to
	m.mu.Unlock()

	m.metrics.SourceFailoversTotal.WithLabelValues(from, to).Inc()
	m.health.SetSourceMode(to)
	log.Printf("[sourcemanager] switching source mode %s -> %s", from, to)
}

func (m *Manager) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.eventCh:
			if !ok {
				return
			}
			switch ev.Kind {
			case exchange.EventPrice:
				m.ds.UpdatePrice(ev.Price)
				m.health.SetLastTickTime(time.UnixMilli(ev.Price.EventTimeMs))
			case exchange.EventCandle:
				m.ds.AppendCandle(ev.Candle.Symbol, ev.Candle)
			case exchange.EventFunding:
				m.ds.SetFunding(ev.Funding)
			case exchange.EventOpenInterest:
				m.ds.SetOpenInterest(ev.OI)
			}
		}
	}
}

func (m *Manager) cacheHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.health.SetCacheConnected(m.cache.Connected())
		}
	}
}

// clockSanityLoop periodically compares Binance server time to the local
// clock and degrades health/ClockState when skew exceeds the configured
// threshold, so strategies relying on candle-close timing can tell when
// local time can't be trusted.
func (m *Manager) clockSanityLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			serverMs, err := m.feed.ServerTime(ctx)
			if err != nil {
				log.Printf("[sourcemanager] server time check failed: %v", err)
				continue
			}
			skew := serverMs - time.Now().UnixMilli()
			if skew < 0 {
				skew = -skew
			}
			m.metrics.ClockSkewMs.Set(float64(skew))
			if skew > m.cfg.ClockSkewDegradedMs {
				m.health.SetClockState("degraded")
			} else {
				m.health.SetClockState("normal")
			}
		}
	}
}
