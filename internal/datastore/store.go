// Package datastore holds the thread-safe, in-memory, per-symbol market
// state the signal service reads on every tick. Each symbol's state is
// guarded by its own mutex (the teacher's indicator engine gets away with
// no locking because it runs single-goroutine; here price/kline/funding/OI
// updates arrive concurrently from the source manager, so this package trades
// that single-goroutine assumption for a lock per symbol) and every update
// is guarded by a monotonic event-time check so a late/duplicate message
// can never move a symbol's view of the world backwards.
package datastore

import (
	"sync"

	"perpsignal/internal/calc"
	"perpsignal/internal/candlebuf"
	"perpsignal/internal/model"
	"perpsignal/internal/ringbuf"
)

const (
	candleCapacity    = 4*60 + 16 // ~4h of 1m candles plus slack, enough for a 14-period 15m ATR
	oiHistorySamples  = 96        // most recent OI samples kept for OIZScore/OIDelta15m (~48 min at a 30s OI poll)
	atrHistorySamples = 96        // ~24h of 15m ATR readings, window for atr_15m_baseline
)

// symbolState is the mutable per-symbol view. All fields are guarded by mu.
type symbolState struct {
	mu sync.RWMutex

	price             model.PriceTick
	priceValid        bool
	lastKlineOpenTsMs int64
	candles           *candlebuf.Buffer

	lastATRWindowMs int64 // start of the 15m window last folded into atrHistory; -1 until seeded
	atrHistory      *ringbuf.Ring[float64]

	funding      model.FundingSnapshot
	fundingValid bool

	oi        model.OpenInterestSnapshot
	oiValid   bool
	oiHistory *ringbuf.Ring[calc.OISample]
}

func newSymbolState() *symbolState {
	return &symbolState{
		candles:         candlebuf.New(candleCapacity),
		lastATRWindowMs: -1,
		atrHistory:      ringbuf.New[float64](atrHistorySamples),
		oiHistory:       ringbuf.New[calc.OISample](oiHistorySamples),
	}
}

// DataStore is the single source of truth for market data the strategies
// and calculations read from. Safe for concurrent use: readers (Snapshot)
// and writers (UpdatePrice, AppendCandle, ...) may be called from any
// goroutine at any time.
type DataStore struct {
	mu          sync.RWMutex
	symbols     map[string]*symbolState
	staleMs     int64
	klineStaleMs int64
}

// New creates a DataStore pre-seeded with empty state for each symbol.
// staleMs/klineStaleMs configure the freshness windows Snapshot reports:
// staleMs is in seconds (price, funding and OI), klineStaleMs in
// milliseconds (last kline close).
func New(symbols []string, staleMs, klineStaleMs int64) *DataStore {
	ds := &DataStore{
		symbols:      make(map[string]*symbolState, len(symbols)),
		staleMs:      staleMs,
		klineStaleMs: klineStaleMs,
	}
	for _, s := range symbols {
		ds.symbols[s] = newSymbolState()
	}
	return ds
}

func (ds *DataStore) stateFor(symbol string) (*symbolState, bool) {
	ds.mu.RLock()
	st, ok := ds.symbols[symbol]
	ds.mu.RUnlock()
	return st, ok
}

// UpdatePrice records a new best-price tick. Returns false if the symbol is
// not tracked or the tick is not newer than the last accepted one
// (monotonic event-time guard).
func (ds *DataStore) UpdatePrice(tick model.PriceTick) bool {
	st, ok := ds.stateFor(tick.Symbol)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.priceValid && tick.EventTimeMs <= st.price.EventTimeMs {
		return false
	}
	st.price = tick
	st.priceValid = true
	return true
}

// AppendCandle stores a closed 1m candle. Returns false if the symbol is
// not tracked, the candle isn't closed, or it is older than the last
// appended candle (candlebuf.Append's own ordering guard).
func (ds *DataStore) AppendCandle(symbol string, c model.Candle1m) bool {
	if !c.IsClosed {
		return false
	}
	st, ok := ds.stateFor(symbol)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if c.OpenTime > st.lastKlineOpenTsMs {
		st.lastKlineOpenTsMs = c.OpenTime
	}
	return st.candles.Append(c)
}

// MergeKlines bulk-loads a batch of closed candles, e.g. a REST backfill on
// source failover/state-sync. Returns the number actually stored: candles
// older than the last stored one are skipped by the same ordering guard as
// AppendCandle, and one with the same OpenTime as the last stored candle
// replaces it and is counted.
func (ds *DataStore) MergeKlines(symbol string, candles []model.Candle1m) int {
	st, ok := ds.stateFor(symbol)
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	stored := 0
	for _, c := range candles {
		if !c.IsClosed {
			continue
		}
		if st.candles.Append(c) {
			stored++
			if c.OpenTime > st.lastKlineOpenTsMs {
				st.lastKlineOpenTsMs = c.OpenTime
			}
		}
	}
	return stored
}

// SetFunding records a new funding/mark-price snapshot, monotonic on EventTimeMs.
func (ds *DataStore) SetFunding(f model.FundingSnapshot) bool {
	st, ok := ds.stateFor(f.Symbol)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.fundingValid && f.EventTimeMs <= st.funding.EventTimeMs {
		return false
	}
	st.funding = f
	st.fundingValid = true
	return true
}

// SetOpenInterest records a new open-interest sample and moves the previous
// one into the rolling history ring used for OIZScore/OIDelta15m, dropping
// the oldest sample once oiHistorySamples are held.
func (ds *DataStore) SetOpenInterest(o model.OpenInterestSnapshot) bool {
	st, ok := ds.stateFor(o.Symbol)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.oiValid && o.EventTimeMs <= st.oi.EventTimeMs {
		return false
	}
	if st.oiValid {
		if st.oiHistory.Len() >= oiHistorySamples {
			st.oiHistory.Pop()
		}
		st.oiHistory.Push(calc.OISample{Value: st.oi.OIValue, EventTimeMs: st.oi.EventTimeMs})
	}
	st.oi = o
	st.oiValid = true
	return true
}

// Freshness reports whether symbol's most recent price tick and kline
// close are within the configured staleness windows, without building a
// full SignalContext. SourceManager calls this once per symbol per tick
// to decide whether a WS->REST failover is warranted.
func (ds *DataStore) Freshness(symbol string, nowMs int64) (priceFresh, klineFresh bool) {
	st, ok := ds.stateFor(symbol)
	if !ok {
		return false, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()

	if st.priceValid {
		priceFresh = nowMs-st.price.EventTimeMs <= ds.staleMs*1000
	}
	if last, lok := st.candles.Last(); lok {
		klineFresh = nowMs-last.CloseTime <= ds.klineStaleMs
	}
	return priceFresh, klineFresh
}

// Symbols returns the tracked symbol list.
func (ds *DataStore) Symbols() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	out := make([]string, 0, len(ds.symbols))
	for s := range ds.symbols {
		out = append(out, s)
	}
	return out
}

// Snapshot builds the immutable SignalContext a strategy evaluates against
// for one symbol at nowMs. ok is false only if the symbol isn't tracked;
// individual indicator readiness/freshness is reported through the
// context's own Ready/Fresh flags rather than by failing the whole call.
func (ds *DataStore) Snapshot(symbol string, nowMs int64) (model.SignalContext, bool) {
	st, ok := ds.stateFor(symbol)
	if !ok {
		return model.SignalContext{}, false
	}
	// Lock (not RLock): Snapshot folds the latest closed 15m ATR reading
	// into atrHistory the first time it observes a given window, so it
	// mutates symbolState as well as reading it.
	st.mu.Lock()
	defer st.mu.Unlock()

	ctx := model.SignalContext{
		Symbol: symbol,
		NowMs:  nowMs,
	}

	if st.priceValid {
		ctx.Price = st.price.Price
		ctx.PriceFresh = nowMs-st.price.EventTimeMs <= ds.staleMs*1000
	}

	closed := st.candles.Snapshot()
	if last, lok := st.candles.Last(); lok {
		ctx.KlineFresh = nowMs-last.CloseTime <= ds.klineStaleMs
	}
	ctx.RecentClosed = closed

	if ret, rok := calc.Ret5m(closed); rok {
		ctx.Ret5m = ret
		ctx.Ret5mReady = true
	}

	// The 20m range leaves out the latest closed candle, which is the one
	// strategies test against that range.
	if n := len(closed); n > 1 {
		if high, low, hlok := calc.Last20mHighLow(closed[:n-1], nowMs); hlok {
			ctx.Last20mHigh = high
			ctx.Last20mLow = low
		}
	}

	series15m := build15mSeries(symbol, closed, nowMs, 30)
	if atr, aok := calc.ATR14(series15m); aok {
		ctx.ATR15m = atr
		ctx.ATR15mReady = true

		// Fold this reading into the rolling baseline exactly once per
		// newly-closed 15m window, not once per tick (ticks run far more
		// often than 15m), so the baseline stays a genuine trailing mean
		// over wall-clock time instead of bunching up near "now".
		lastClosedWindowStart := (nowMs/fifteenMinMs)*fifteenMinMs - fifteenMinMs
		if lastClosedWindowStart > st.lastATRWindowMs {
			if st.atrHistory.Len() >= atrHistorySamples {
				st.atrHistory.Pop()
			}
			st.atrHistory.Push(atr)
			st.lastATRWindowMs = lastClosedWindowStart
		}
	}
	if baselineHistory := st.atrHistory.Snapshot(); len(baselineHistory) > 0 {
		var sum float64
		for _, v := range baselineHistory {
			sum += v
		}
		ctx.ATRBaseline = sum / float64(len(baselineHistory))
		ctx.ATRBaselineOK = true
	}

	if st.fundingValid {
		ctx.FundingRate = st.funding.LastFundingRate
		ctx.MarkPrice = st.funding.MarkPrice
		ctx.FundingFresh = nowMs-st.funding.EventTimeMs <= ds.staleMs*1000
	}

	if st.oiValid {
		ctx.OI = st.oi.OIValue
		ctx.OIFresh = nowMs-st.oi.EventTimeMs <= ds.staleMs*1000

		history := st.oiHistory.Snapshot()
		values := make([]float64, len(history))
		for i, h := range history {
			values[i] = h.Value
		}
		if z, zok := calc.OIZScore(values, st.oi.OIValue); zok {
			ctx.OIZScore = z
			ctx.OIZScoreOK = true
		}
		if delta, dok := calc.OIDelta15m(history, st.oi.OIValue, nowMs); dok {
			ctx.OIDelta15m = delta
			ctx.OIDelta15mOK = true
		}
	}

	ctx.ClockState = model.ClockNormal

	return ctx, true
}

// build15mSeries aggregates closed 1m candles into a trailing series of
// Candle15m windows ending at the most recent fully-closed 15-minute
// boundary before nowMs.
func build15mSeries(symbol string, closed1m []model.Candle1m, nowMs int64, numWindows int) []model.Candle15m {
	currentWindowStart := (nowMs / fifteenMinMs) * fifteenMinMs
	lastClosedWindowStart := currentWindowStart - fifteenMinMs

	out := make([]model.Candle15m, 0, numWindows)
	for i := numWindows - 1; i >= 0; i-- {
		windowStart := lastClosedWindowStart - int64(i)*fifteenMinMs
		if c, ok := calc.Aggregate15m(symbol, closed1m, windowStart); ok {
			out = append(out, c)
		}
	}
	return out
}

const fifteenMinMs = 15 * 60 * 1000
