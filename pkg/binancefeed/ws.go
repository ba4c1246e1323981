package binancefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsBaseURL = "wss://fstream.binance.com/stream"

// WSConfig configures a combined-stream connection.
type WSConfig struct {
	Symbols         []string // e.g. ["btcusdt", "ethusdt"], lowercase
	BackoffMin      time.Duration
	BackoffMax      time.Duration
}

// WS is a Binance USDT-M futures combined-stream client. It mirrors the
// teacher's SmartWebSocketV3 shape (Connect/Close, OnX callbacks, an
// internal read loop with reconnect-with-backoff) but the wire format is
// JSON text frames over a single combined-stream URL rather than a
// binary-framed, subscribe-after-connect protocol.
type WS struct {
	cfg WSConfig

	mu   sync.Mutex
	conn *websocket.Conn

	OnBookTicker func(BookTickerEvent)
	OnKline      func(KlineEvent)
	OnMarkPrice  func(MarkPriceEvent)
	OnOpen       func()
	OnClose      func()
	OnError      func(err error)

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a combined-stream client. Connect must be called to start it.
func New(cfg WSConfig) *WS {
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	return &WS{cfg: cfg}
}

func (w *WS) streamURL() string {
	streams := make([]string, 0, len(w.cfg.Symbols)*3)
	for _, s := range w.cfg.Symbols {
		s = strings.ToLower(s)
		streams = append(streams, s+"@bookTicker", s+"@kline_1m", s+"@markPrice@1s")
	}
	q := url.Values{"streams": {strings.Join(streams, "/")}}
	return wsBaseURL + "?" + q.Encode()
}

// Connect dials the combined stream and starts the read loop. It blocks
// until ctx is cancelled, reconnecting with exponential backoff on any
// read error.
func (w *WS) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	backoff := w.cfg.BackoffMin

	for {
		if w.ctx.Err() != nil {
			return nil
		}

		conn, _, err := websocket.DefaultDialer.DialContext(w.ctx, w.streamURL(), nil)
		if err != nil {
			w.emitError(fmt.Errorf("binancefeed: dial: %w", err))
			if !w.sleepBackoff(&backoff) {
				return nil
			}
			continue
		}

		w.mu.Lock()
		w.conn = conn
		w.mu.Unlock()
		backoff = w.cfg.BackoffMin

		if w.OnOpen != nil {
			w.OnOpen()
		}

		w.readLoop(conn)

		if w.OnClose != nil {
			w.OnClose()
		}
		if w.ctx.Err() != nil {
			return nil
		}
		if !w.sleepBackoff(&backoff) {
			return nil
		}
	}
}

// Close tears down the connection and stops the read loop.
func (w *WS) Close() {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *WS) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			w.emitError(fmt.Errorf("binancefeed: read: %w", err))
			return
		}
		w.dispatch(message)
	}
}

func (w *WS) dispatch(message []byte) {
	var env combinedStreamEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		w.emitError(fmt.Errorf("binancefeed: decode envelope: %w", err))
		return
	}

	switch {
	case strings.HasSuffix(env.Stream, "@bookTicker"):
		var ev BookTickerEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			w.emitError(fmt.Errorf("binancefeed: decode bookTicker: %w", err))
			return
		}
		if w.OnBookTicker != nil {
			w.OnBookTicker(ev)
		}
	case strings.Contains(env.Stream, "@kline_"):
		var ev KlineEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			w.emitError(fmt.Errorf("binancefeed: decode kline: %w", err))
			return
		}
		if w.OnKline != nil {
			w.OnKline(ev)
		}
	case strings.Contains(env.Stream, "@markPrice"):
		var ev MarkPriceEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			w.emitError(fmt.Errorf("binancefeed: decode markPrice: %w", err))
			return
		}
		if w.OnMarkPrice != nil {
			w.OnMarkPrice(ev)
		}
	default:
		log.Printf("[binancefeed] unrecognized stream %q", env.Stream)
	}
}

func (w *WS) emitError(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}

// sleepBackoff waits the current backoff duration (doubling it, capped at
// BackoffMax) and reports whether the caller should keep retrying.
func (w *WS) sleepBackoff(backoff *time.Duration) bool {
	select {
	case <-w.ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > w.cfg.BackoffMax {
		*backoff = w.cfg.BackoffMax
	}
	return true
}
