// Package rest is the polling fallback source: when the WebSocket feed is
// down, SourceManager switches to this package to keep DataStore fed via
// periodic REST calls, the same failover role the teacher's
// internal/marketdata/wssim played as a stand-in data source (here it's a
// genuine second transport, not a simulator).
package rest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perpsignal/internal/exchange"
	"perpsignal/internal/model"
	"perpsignal/pkg/binancefeed"
)

// Config configures the REST poller.
type Config struct {
	Symbols            []string
	KlinePollInterval   time.Duration
	FundingPollInterval time.Duration
	OIPollInterval      time.Duration
	KlineLimit          int
}

// Client polls Binance USDT-M futures REST endpoints on independent tickers
// per data kind and pushes normalized MarketEvents into eventCh.
type Client struct {
	cfg  Config
	rest *binancefeed.REST

	OnPollError func(error)
}

// New creates a REST polling client.
func New(cfg Config, rest *binancefeed.REST) *Client {
	return &Client{cfg: cfg, rest: rest}
}

// Start runs all polling loops until ctx is cancelled. Blocking call — run
// it in its own goroutine.
func (c *Client) Start(ctx context.Context, eventCh chan<- exchange.MarketEvent) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); c.pollKlines(ctx, eventCh) }()
	go func() { defer wg.Done(); c.pollFunding(ctx, eventCh) }()
	go func() { defer wg.Done(); c.pollOpenInterest(ctx, eventCh) }()
	wg.Wait()
}

func (c *Client) pollKlines(ctx context.Context, eventCh chan<- exchange.MarketEvent) {
	ticker := time.NewTicker(c.cfg.KlinePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range c.cfg.Symbols {
				klines, err := c.rest.Klines(ctx, symbol, c.cfg.KlineLimit)
				if err != nil {
					c.reportError("klines", symbol, err)
					continue
				}
				for _, k := range klines {
					c.emit(eventCh, exchange.MarketEvent{
						Kind: exchange.EventCandle,
						Candle: model.Candle1m{
							Symbol:    symbol,
							OpenTime:  k.OpenTimeMs,
							CloseTime: k.CloseTimeMs,
							Open:      k.Open,
							High:      k.High,
							Low:       k.Low,
							Close:     k.Close,
							Volume:    k.Volume,
							IsClosed:  k.IsClosed,
							EventTime: time.UnixMilli(k.CloseTimeMs).UTC(),
						},
					})
				}
				// The last close price also approximates a price tick when
				// the book-ticker stream isn't available.
				if len(klines) > 0 {
					last := klines[len(klines)-1]
					c.emit(eventCh, exchange.MarketEvent{
						Kind: exchange.EventPrice,
						Price: model.PriceTick{
							Symbol:         symbol,
							Price:          last.Close,
							EventTimeMs:    last.CloseTimeMs,
							ReceivedTimeMs: time.Now().UnixMilli(),
						},
					})
				}
			}
		}
	}
}

func (c *Client) pollFunding(ctx context.Context, eventCh chan<- exchange.MarketEvent) {
	ticker := time.NewTicker(c.cfg.FundingPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range c.cfg.Symbols {
				pi, err := c.rest.PremiumIndex(ctx, symbol)
				if err != nil {
					c.reportError("premium_index", symbol, err)
					continue
				}
				c.emit(eventCh, exchange.MarketEvent{
					Kind: exchange.EventFunding,
					Funding: model.FundingSnapshot{
						Symbol:          symbol,
						MarkPrice:       pi.MarkPrice,
						LastFundingRate: pi.LastFundingRate,
						NextFundingTime: pi.NextFundingTime,
						EventTimeMs:     time.Now().UnixMilli(),
					},
				})
			}
		}
	}
}

func (c *Client) pollOpenInterest(ctx context.Context, eventCh chan<- exchange.MarketEvent) {
	ticker := time.NewTicker(c.cfg.OIPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range c.cfg.Symbols {
				value, eventTimeMs, err := c.rest.OpenInterest(ctx, symbol)
				if err != nil {
					c.reportError("open_interest", symbol, err)
					continue
				}
				c.emit(eventCh, exchange.MarketEvent{
					Kind: exchange.EventOpenInterest,
					OI: model.OpenInterestSnapshot{
						Symbol:      symbol,
						OIValue:     value,
						EventTimeMs: eventTimeMs,
					},
				})
			}
		}
	}
}

// Backfill fetches the most recent klineLimit 1m klines for symbol,
// decoded into model.Candle1m, for SourceManager's state-sync on recovery.
func (c *Client) Backfill(ctx context.Context, symbol string, klineLimit int) ([]model.Candle1m, error) {
	klines, err := c.rest.Klines(ctx, symbol, klineLimit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Candle1m, len(klines))
	for i, k := range klines {
		out[i] = model.Candle1m{
			Symbol:    symbol,
			OpenTime:  k.OpenTimeMs,
			CloseTime: k.CloseTimeMs,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
			IsClosed:  k.IsClosed,
			EventTime: time.UnixMilli(k.CloseTimeMs).UTC(),
		}
	}
	return out, nil
}

func (c *Client) emit(eventCh chan<- exchange.MarketEvent, ev exchange.MarketEvent) {
	select {
	case eventCh <- ev:
	default:
		c.reportError("emit", "", fmt.Errorf("event channel full, dropping event"))
	}
}

func (c *Client) reportError(op, symbol string, err error) {
	if c.OnPollError != nil {
		c.OnPollError(&exchange.TransportError{Op: fmt.Sprintf("%s(%s)", op, symbol), Err: err})
	}
}
