package risk

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"perpsignal/internal/metrics"
)

// PnLLedger is an append-only CSV of realized P&L events, the one
// record this system keeps of trade outcomes — no position tracking or
// cost-basis accounting, unlike the teacher's portfolio tracker, since
// this system never places orders.
type PnLLedger struct {
	mu      sync.Mutex
	path    string
	metrics *metrics.Metrics
}

func NewPnLLedger(path string, m *metrics.Metrics) (*PnLLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("pnl ledger: %w", err)
	}
	l := &PnLLedger{path: path, metrics: m}
	if err := l.ensureHeader(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *PnLLedger) ensureHeader() error {
	if _, err := os.Stat(l.path); err == nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString("timestamp_ms,symbol,usdt\n")
	return err
}

// RecordPnL appends one line to the ledger. A write failure is logged
// via the caller-visible error and counted in metrics, but never
// blocks the tick loop.
func (l *PnLLedger) RecordPnL(symbol string, usdt float64, nowMs int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if l.metrics != nil {
			l.metrics.PnLLedgerWriteErrors.Inc()
		}
		return fmt.Errorf("pnl ledger: open: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d,%s,%f\n", nowMs, symbol, usdt); err != nil {
		if l.metrics != nil {
			l.metrics.PnLLedgerWriteErrors.Inc()
		}
		return fmt.Errorf("pnl ledger: write: %w", err)
	}
	return nil
}
