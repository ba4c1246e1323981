package risk

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"perpsignal/internal/metrics"
	"perpsignal/internal/model"
)

// Journal persists dispatched ProposalCards to SQLite for audit and
// after-the-fact analysis, adapted from the teacher's trade-fill
// journal to record signal dispatches instead of executions.
type Journal struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

// NewJournal opens (or creates) a SQLite journal database in WAL mode.
func NewJournal(dbPath string, m *metrics.Metrics) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS cards (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol        TEXT NOT NULL,
		strategy      TEXT NOT NULL,
		side          TEXT NOT NULL,
		entry         REAL NOT NULL,
		stop          REAL NOT NULL,
		confidence    INTEGER NOT NULL,
		priority      INTEGER NOT NULL,
		ttl_minutes   INTEGER NOT NULL,
		dispatched_at DATETIME NOT NULL,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_cards_symbol ON cards(symbol);
	CREATE INDEX IF NOT EXISTS idx_cards_dispatched_at ON cards(dispatched_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}

	return &Journal{db: db, metrics: m}, nil
}

// RecordDispatch persists one dispatched card.
func (j *Journal) RecordDispatch(card model.ProposalCard, dispatchedAtMs int64) error {
	start := time.Now()
	defer func() {
		if j.metrics != nil {
			j.metrics.JournalCommitDur.Observe(time.Since(start).Seconds())
		}
	}()

	_, err := j.db.Exec(
		`INSERT INTO cards (symbol, strategy, side, entry, stop, confidence, priority, ttl_minutes, dispatched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		card.Symbol,
		card.Strategy,
		string(card.Side),
		card.Entry,
		card.Stop,
		card.Confidence,
		card.Priority,
		card.TTLMinutes,
		time.UnixMilli(dispatchedAtMs).UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// CardRecord is a row read back from the journal.
type CardRecord struct {
	ID           int64   `json:"id"`
	Symbol       string  `json:"symbol"`
	Strategy     string  `json:"strategy"`
	Side         string  `json:"side"`
	Entry        float64 `json:"entry"`
	Stop         float64 `json:"stop"`
	Confidence   int     `json:"confidence"`
	Priority     int     `json:"priority"`
	TTLMinutes   int     `json:"ttl_minutes"`
	DispatchedAt string  `json:"dispatched_at"`
}

// RecentCards returns the last limit dispatched cards, newest first.
func (j *Journal) RecentCards(limit int) ([]CardRecord, error) {
	rows, err := j.db.Query(
		`SELECT id, symbol, strategy, side, entry, stop, confidence, priority, ttl_minutes, dispatched_at
		 FROM cards ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []CardRecord
	for rows.Next() {
		var r CardRecord
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Strategy, &r.Side, &r.Entry, &r.Stop,
			&r.Confidence, &r.Priority, &r.TTLMinutes, &r.DispatchedAt); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Close closes the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
