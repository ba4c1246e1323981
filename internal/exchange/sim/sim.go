// Package sim is a deterministic synthetic market-data source, the same
// role the teacher's internal/marketdata/wssim fills for offline testing —
// a drop-in substitute for the real transports with an identical
// Start(ctx, eventCh) interface, but generating its own data instead of
// connecting to a test WebSocket server.
package sim

import (
	"context"
	"math/rand"
	"time"

	"perpsignal/internal/exchange"
	"perpsignal/internal/model"
)

// Config configures the simulated exchange.
type Config struct {
	Symbols    []string
	Seed       int64
	TickPeriod time.Duration // price tick cadence; defaults to 1s
	StartPrice float64       // defaults to 50000 if zero
}

// Sim generates a random-walk price series plus matching 1m candles,
// funding, and open-interest samples for each configured symbol.
type Sim struct {
	cfg Config
	rng *rand.Rand
}

// New creates a simulated exchange source.
func New(cfg Config) *Sim {
	if cfg.TickPeriod == 0 {
		cfg.TickPeriod = time.Second
	}
	if cfg.StartPrice == 0 {
		cfg.StartPrice = 50000
	}
	return &Sim{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

type symbolWalk struct {
	price        float64
	candleOpen   float64
	candleHigh   float64
	candleLow    float64
	candleOpenMs int64
	oi           float64
	fundingRate  float64
}

// Start runs the simulated feed until ctx is cancelled. Blocking call — run
// it in its own goroutine.
func (s *Sim) Start(ctx context.Context, eventCh chan<- exchange.MarketEvent) error {
	walks := make(map[string]*symbolWalk, len(s.cfg.Symbols))
	nowMs := time.Now().UnixMilli()
	for _, sym := range s.cfg.Symbols {
		walks[sym] = &symbolWalk{
			price:        s.cfg.StartPrice,
			candleOpen:   s.cfg.StartPrice,
			candleHigh:   s.cfg.StartPrice,
			candleLow:    s.cfg.StartPrice,
			candleOpenMs: (nowMs / 60_000) * 60_000,
			oi:           1_000_000,
			fundingRate:  0.0001,
		}
	}

	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			nowMs := t.UnixMilli()
			for _, sym := range s.cfg.Symbols {
				s.step(sym, walks[sym], nowMs, eventCh)
			}
		}
	}
}

func (s *Sim) step(symbol string, w *symbolWalk, nowMs int64, eventCh chan<- exchange.MarketEvent) {
	pctMove := (s.rng.Float64() - 0.5) * 0.002 // +/- 0.1% per tick
	w.price *= 1 + pctMove
	if w.price > w.candleHigh {
		w.candleHigh = w.price
	}
	if w.price < w.candleLow {
		w.candleLow = w.price
	}

	emit(eventCh, exchange.MarketEvent{
		Kind: exchange.EventPrice,
		Price: model.PriceTick{
			Symbol:         symbol,
			Price:          w.price,
			EventTimeMs:    nowMs,
			ReceivedTimeMs: nowMs,
		},
	})

	bucketStart := (nowMs / 60_000) * 60_000
	if bucketStart > w.candleOpenMs {
		emit(eventCh, exchange.MarketEvent{
			Kind: exchange.EventCandle,
			Candle: model.Candle1m{
				Symbol:    symbol,
				OpenTime:  w.candleOpenMs,
				CloseTime: w.candleOpenMs + 60_000,
				Open:      w.candleOpen,
				High:      w.candleHigh,
				Low:       w.candleLow,
				Close:     w.price,
				IsClosed:  true,
				EventTime: time.UnixMilli(nowMs).UTC(),
			},
		})
		w.candleOpenMs = bucketStart
		w.candleOpen = w.price
		w.candleHigh = w.price
		w.candleLow = w.price
	}

	w.oi *= 1 + (s.rng.Float64()-0.5)*0.001
	emit(eventCh, exchange.MarketEvent{
		Kind: exchange.EventOpenInterest,
		OI:   model.OpenInterestSnapshot{Symbol: symbol, OIValue: w.oi, EventTimeMs: nowMs},
	})

	w.fundingRate += (s.rng.Float64() - 0.5) * 0.00001
	emit(eventCh, exchange.MarketEvent{
		Kind: exchange.EventFunding,
		Funding: model.FundingSnapshot{
			Symbol:          symbol,
			MarkPrice:       w.price,
			LastFundingRate: w.fundingRate,
			NextFundingTime: nowMs + 8*3600*1000,
			EventTimeMs:     nowMs,
		},
	})
}

func emit(eventCh chan<- exchange.MarketEvent, ev exchange.MarketEvent) {
	select {
	case eventCh <- ev:
	default:
	}
}
