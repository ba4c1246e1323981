package sim

import (
	"context"
	"testing"
	"time"

	"perpsignal/internal/datastore"
	"perpsignal/internal/exchange"
)

// TestSim_FeedsDataStore drives the simulated exchange directly into a
// DataStore the way SourceManager's consumeEvents loop would.
func TestSim_FeedsDataStore(t *testing.T) {
	s := New(Config{
		Symbols:    []string{"BTCUSDT"},
		Seed:       1,
		TickPeriod: time.Millisecond,
		StartPrice: 100,
	})

	ds := datastore.New([]string{"BTCUSDT"}, 60, 120_000)
	eventCh := make(chan exchange.MarketEvent, 256)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, eventCh) }()

	drain := func() {
		for {
			select {
			case ev := <-eventCh:
				apply(ds, ev)
			case <-ctx.Done():
				return
			}
		}
	}
	drain()
	<-done

	sctx, ok := ds.Snapshot("BTCUSDT", time.Now().UnixMilli())
	if !ok {
		t.Fatal("expected a snapshot for BTCUSDT")
	}
	if !sctx.PriceFresh {
		t.Fatal("expected the simulated feed to have produced a fresh price")
	}
	if sctx.Price <= 0 {
		t.Fatalf("expected a positive simulated price, got %v", sctx.Price)
	}
}

// apply mirrors sourcemanager.Manager.consumeEvents' event-kind switch,
// without importing that package (it owns its own eventCh wiring).
func apply(ds *datastore.DataStore, ev exchange.MarketEvent) {
	switch ev.Kind {
	case exchange.EventPrice:
		ds.UpdatePrice(ev.Price)
	case exchange.EventCandle:
		ds.AppendCandle(ev.Candle.Symbol, ev.Candle)
	case exchange.EventFunding:
		ds.SetFunding(ev.Funding)
	case exchange.EventOpenInterest:
		ds.SetOpenInterest(ev.OI)
	}
}
