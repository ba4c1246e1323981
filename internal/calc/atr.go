package calc

import "perpsignal/internal/model"

// ATR14 computes a 14-period Average True Range over 15m candles using
// Wilder smoothing, the same recurrence as the teacher's SMMA indicator
// (first value is a plain average of the first `period` true ranges,
// subsequent values are (prev*(period-1)+tr)/period) but expressed as a
// stateless fold over a slice rather than an incrementally updated struct.
// closed15m must be ordered oldest-first. Ready is false with fewer than
// period+1 candles (one extra is needed to seed the first true range's
// previous close).
func ATR14(closed15m []model.Candle15m) (atr float64, ready bool) {
	return ATR(closed15m, 14)
}

// ATR computes a Wilder-smoothed Average True Range for an arbitrary period.
func ATR(closed15m []model.Candle15m, period int) (atr float64, ready bool) {
	if period < 1 || len(closed15m) < period+1 {
		return 0, false
	}

	trueRanges := make([]float64, 0, len(closed15m)-1)
	for i := 1; i < len(closed15m); i++ {
		trueRanges = append(trueRanges, trueRange(closed15m[i], closed15m[i-1]))
	}

	// Seed: simple average of the first `period` true ranges.
	var sum float64
	for i := 0; i < period; i++ {
		sum += trueRanges[i]
	}
	current := sum / float64(period)

	// Wilder-smooth the remainder.
	for i := period; i < len(trueRanges); i++ {
		current = (current*float64(period-1) + trueRanges[i]) / float64(period)
	}

	return current, true
}

func trueRange(c, prev model.Candle15m) float64 {
	highLow := c.High - c.Low
	highPrevClose := abs(c.High - prev.Close)
	lowPrevClose := abs(c.Low - prev.Close)
	tr := highLow
	if highPrevClose > tr {
		tr = highPrevClose
	}
	if lowPrevClose > tr {
		tr = lowPrevClose
	}
	return tr
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
