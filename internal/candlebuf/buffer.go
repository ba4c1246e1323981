// Package candlebuf maintains an ordered, deduplicated window of closed 1m
// candles for a single symbol. It is the in-memory analogue of
// tfbuilder's forming-candle state, but for already-closed candles that
// DataStore needs to keep a bounded lookback window of (see spec §4.3).
package candlebuf

import "perpsignal/internal/model"

// Buffer holds closed 1m candles ordered by ascending OpenTime, deduped on
// OpenTime, trimmed to a maximum capacity. Not safe for concurrent use —
// callers (internal/datastore) provide their own locking.
type Buffer struct {
	candles []model.Candle1m
	cap     int
}

// New creates a candle buffer that retains at most capacity candles.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		candles: make([]model.Candle1m, 0, capacity),
		cap:     capacity,
	}
}

// Append inserts a closed candle in OpenTime order.
//
//   - If c.OpenTime matches the last candle's OpenTime, it replaces it
//     (a corrected/late-finalized duplicate for the same bucket).
//   - If c.OpenTime is newer than the last candle, it is appended and the
//     buffer is trimmed from the front if it exceeds capacity.
//   - If c.OpenTime is older than the last candle (out-of-order arrival),
//     it is dropped; the buffer never reorders.
//
// Returns true if the candle was stored (appended or replaced).
func (b *Buffer) Append(c model.Candle1m) bool {
	n := len(b.candles)
	if n == 0 {
		b.candles = append(b.candles, c)
		return true
	}

	last := &b.candles[n-1]
	switch {
	case c.OpenTime == last.OpenTime:
		*last = c
		return true
	case c.OpenTime > last.OpenTime:
		b.candles = append(b.candles, c)
		if len(b.candles) > b.cap {
			// Drop oldest; reuse the backing array by shifting.
			copy(b.candles, b.candles[1:])
			b.candles = b.candles[:b.cap]
		}
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the buffered candles, oldest first.
func (b *Buffer) Snapshot() []model.Candle1m {
	out := make([]model.Candle1m, len(b.candles))
	copy(out, b.candles)
	return out
}

// Last returns the most recently appended candle and whether one exists.
func (b *Buffer) Last() (model.Candle1m, bool) {
	if len(b.candles) == 0 {
		return model.Candle1m{}, false
	}
	return b.candles[len(b.candles)-1], true
}

// Len returns the number of candles currently buffered.
func (b *Buffer) Len() int {
	return len(b.candles)
}

// Since returns the candles whose OpenTime is >= sinceMs, oldest first.
func (b *Buffer) Since(sinceMs int64) []model.Candle1m {
	// candles are ordered, so a linear scan from the front is sufficient
	// and cache-friendly for the small windows this buffer holds.
	idx := len(b.candles)
	for i, c := range b.candles {
		if c.OpenTime >= sinceMs {
			idx = i
			break
		}
	}
	out := make([]model.Candle1m, len(b.candles)-idx)
	copy(out, b.candles[idx:])
	return out
}
