package sourcemanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"perpsignal/internal/metrics"
	"perpsignal/internal/model"
)

const (
	cacheKeyPrefix = "perpsignal:candles:"
	cacheTTL       = 30 * time.Minute
)

// circuitState is the teacher's store/redis.State, renamed locally since
// this package doesn't otherwise depend on that package.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker is the teacher's store/redis.CircuitBreaker, copied
// as-is — the consecutive-failures/reset-timeout/half-open-probe shape
// doesn't change between candle-stream writes and candle-cache writes.
type circuitBreaker struct {
	mu           sync.Mutex
	state        circuitState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	onStateChange func(from, to circuitState)
}

func newCircuitBreaker(maxFailures int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

var errCircuitOpen = fmt.Errorf("cache circuit breaker is open")

func (cb *circuitBreaker) execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case circuitOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.transition(circuitHalfOpen)
		} else {
			cb.mu.Unlock()
			return errCircuitOpen
		}
	case circuitHalfOpen:
		// allow the single probe call through, serialized by cb.mu below
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == circuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(circuitOpen)
		}
		return err
	}
	if cb.state == circuitHalfOpen {
		cb.transition(circuitClosed)
	}
	cb.failures = 0
	return nil
}

func (cb *circuitBreaker) transition(to circuitState) {
	from := cb.state
	cb.state = to
	if to == circuitClosed {
		cb.failures = 0
	}
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

func (cb *circuitBreaker) currentState() circuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// WarmCache is a best-effort Redis cache of each symbol's recent closed
// candles, consulted during SourceManager state-sync so a failover doesn't
// always have to wait on a cold REST backfill. Wrapped in a circuit
// breaker adapted from the teacher's store/redis.CircuitBreaker +
// BufferedWriter: a struggling Redis degrades to "skip the cache, fall
// back to REST" rather than stalling recovery on Redis timeouts.
type WarmCache struct {
	client  *goredis.Client
	cb      *circuitBreaker
	metrics *metrics.Metrics
}

// NewWarmCache connects to Redis and pings it once. A ping failure is not
// fatal — the cache simply starts with its circuit breaker already open,
// degrading straight to REST-only behavior.
func NewWarmCache(addr, password string, m *metrics.Metrics) *WarmCache {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})

	wc := &WarmCache{
		client:  client,
		cb:      newCircuitBreaker(5, 10*time.Second),
		metrics: m,
	}
	wc.cb.onStateChange = func(from, to circuitState) {
		if m != nil {
			m.CacheCircuitState.Set(float64(to))
			if to == circuitOpen {
				m.CacheCircuitTrips.Inc()
			}
		}
		log.Printf("[warmcache] circuit breaker %v -> %v", from, to)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[warmcache] redis ping failed, starting degraded: %v", err)
		wc.cb.transition(circuitOpen)
		wc.cb.lastFailure = time.Now()
	}
	return wc
}

// Connected reports whether the circuit breaker currently allows writes
// through, surfaced on /healthz as CacheConnected.
func (wc *WarmCache) Connected() bool {
	return wc.cb.currentState() != circuitOpen
}

// WriteCandles caches symbol's recent closed candles. Errors (including
// circuit-open) are non-fatal to the caller — this is an optimization,
// never a source of truth.
func (wc *WarmCache) WriteCandles(ctx context.Context, symbol string, candles []model.Candle1m) error {
	start := time.Now()
	err := wc.cb.execute(func() error {
		payload, err := json.Marshal(candles)
		if err != nil {
			return err
		}
		return wc.client.Set(ctx, cacheKeyPrefix+symbol, payload, cacheTTL).Err()
	})
	if wc.metrics != nil {
		wc.metrics.CacheWriteDur.Observe(time.Since(start).Seconds())
	}
	if err == errCircuitOpen {
		return nil
	}
	return err
}

// ReadCandles returns the cached candles for symbol, if any and if the
// circuit is closed. ok is false on any failure, cache miss, or open
// circuit — callers must treat that as "fall back to REST backfill", not
// as an error.
func (wc *WarmCache) ReadCandles(ctx context.Context, symbol string) ([]model.Candle1m, bool) {
	var candles []model.Candle1m
	err := wc.cb.execute(func() error {
		raw, err := wc.client.Get(ctx, cacheKeyPrefix+symbol).Bytes()
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &candles)
	})
	if err != nil {
		return nil, false
	}
	return candles, true
}

// Close releases the underlying Redis connection.
func (wc *WarmCache) Close() error {
	return wc.client.Close()
}
