// Package ws adapts pkg/binancefeed's combined-stream client into
// exchange.MarketEvents, the same shape of responsibility as the teacher's
// internal/marketdata/ws (wrap a low-level streaming client, push
// normalized events into a channel, surface reconnects via a callback).
package ws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"perpsignal/internal/exchange"
	"perpsignal/internal/model"
	"perpsignal/pkg/binancefeed"
)

// Config configures the WS ingest.
type Config struct {
	Symbols    []string
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Ingest streams Binance USDT-M futures combined-stream data and pushes
// normalized MarketEvents into eventCh.
type Ingest struct {
	cfg Config
	ws  *binancefeed.WS

	// OnReconnect is invoked whenever the underlying connection drops and
	// is about to retry; SourceManager uses it to count reconnects for
	// metrics and recovery-quality tracking.
	OnReconnect func()
	// OnStreamError surfaces decode/transport errors without tearing down
	// the ingest; SourceManager logs these but does not fail over on them.
	OnStreamError func(error)
}

// New creates a WS ingest for the given symbols.
func New(cfg Config) *Ingest {
	return &Ingest{
		cfg: cfg,
		ws: binancefeed.New(binancefeed.WSConfig{
			Symbols:    cfg.Symbols,
			BackoffMin: cfg.BackoffMin,
			BackoffMax: cfg.BackoffMax,
		}),
	}
}

// Start connects and streams until ctx is cancelled. Blocking call — run it
// in its own goroutine.
func (ing *Ingest) Start(ctx context.Context, eventCh chan<- exchange.MarketEvent) error {
	ing.ws.OnClose = func() {
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}
	}

	ing.ws.OnError = func(err error) {
		if ing.OnStreamError != nil {
			ing.OnStreamError(&exchange.StreamError{Op: "read", Err: err})
		}
	}

	ing.ws.OnBookTicker = func(ev binancefeed.BookTickerEvent) {
		bid, errB := strconv.ParseFloat(ev.BestBidPx, 64)
		ask, errA := strconv.ParseFloat(ev.BestAskPx, 64)
		if errB != nil || errA != nil {
			ing.reportDecode("bookTicker", fmt.Errorf("parse bid/ask: bid=%q ask=%q", ev.BestBidPx, ev.BestAskPx))
			return
		}
		mid := (bid + ask) / 2
		tick := model.PriceTick{
			Symbol:         ev.Symbol,
			Price:          mid,
			EventTimeMs:    ev.EventTimeMs,
			ReceivedTimeMs: time.Now().UnixMilli(),
		}
		ing.emit(eventCh, exchange.MarketEvent{Kind: exchange.EventPrice, Price: tick})
	}

	ing.ws.OnKline = func(ev binancefeed.KlineEvent) {
		c, err := decodeKline(ev)
		if err != nil {
			ing.reportDecode("kline", err)
			return
		}
		ing.emit(eventCh, exchange.MarketEvent{Kind: exchange.EventCandle, Candle: c})
	}

	ing.ws.OnMarkPrice = func(ev binancefeed.MarkPriceEvent) {
		f, err := decodeMarkPrice(ev)
		if err != nil {
			ing.reportDecode("markPrice", err)
			return
		}
		ing.emit(eventCh, exchange.MarketEvent{Kind: exchange.EventFunding, Funding: f})
	}

	return ing.ws.Connect(ctx)
}

// Stop tears down the underlying connection.
func (ing *Ingest) Stop() {
	ing.ws.Close()
}

func (ing *Ingest) emit(eventCh chan<- exchange.MarketEvent, ev exchange.MarketEvent) {
	select {
	case eventCh <- ev:
	default:
		if ing.OnStreamError != nil {
			ing.OnStreamError(&exchange.StreamError{Op: "emit", Err: fmt.Errorf("event channel full, dropping event")})
		}
	}
}

func (ing *Ingest) reportDecode(op string, err error) {
	if ing.OnStreamError != nil {
		ing.OnStreamError(&exchange.DecodeError{Op: op, Err: err})
	}
}

func decodeKline(ev binancefeed.KlineEvent) (model.Candle1m, error) {
	open, errO := strconv.ParseFloat(ev.Kline.Open, 64)
	high, errH := strconv.ParseFloat(ev.Kline.High, 64)
	low, errL := strconv.ParseFloat(ev.Kline.Low, 64)
	close_, errC := strconv.ParseFloat(ev.Kline.Close, 64)
	volume, errV := strconv.ParseFloat(ev.Kline.Volume, 64)
	if errO != nil || errH != nil || errL != nil || errC != nil || errV != nil {
		return model.Candle1m{}, fmt.Errorf("decode kline OHLCV for %s", ev.Symbol)
	}
	return model.Candle1m{
		Symbol:    ev.Symbol,
		OpenTime:  ev.Kline.OpenTimeMs,
		CloseTime: ev.Kline.CloseTimeMs,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close_,
		Volume:    volume,
		IsClosed:  ev.Kline.IsClosed,
		EventTime: time.UnixMilli(ev.EventTimeMs).UTC(),
	}, nil
}

func decodeMarkPrice(ev binancefeed.MarkPriceEvent) (model.FundingSnapshot, error) {
	mark, errM := strconv.ParseFloat(ev.MarkPrice, 64)
	rate, errR := strconv.ParseFloat(ev.LastFundingRate, 64)
	if errM != nil || errR != nil {
		return model.FundingSnapshot{}, fmt.Errorf("decode mark price for %s", ev.Symbol)
	}
	return model.FundingSnapshot{
		Symbol:          ev.Symbol,
		MarkPrice:       mark,
		LastFundingRate: rate,
		NextFundingTime: ev.NextFundingTime,
		EventTimeMs:     ev.EventTimeMs,
	}, nil
}
