package exchange

import (
	"context"
	"log"
	"sync"
)

// FanOut broadcasts MarketEvents from a single input channel to N output
// channels, adapted from the teacher's internal/marketdata/bus.FanOut
// (generalized from model.Candle to MarketEvent rather than made generic,
// unlike ringbuf). Nothing in this repository creates a FanOut;
// SourceManager applies events to the DataStore directly.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan MarketEvent
	bufSize int

	// OnDrop is called when an event is dropped for a subscriber.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe() <-chan MarketEvent {
	ch := make(chan MarketEvent, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed.
func (f *FanOut) Run(ctx context.Context, input <-chan MarketEvent) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- ev:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						log.Printf("[exchange] output channel %d full, dropping event", i)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}
