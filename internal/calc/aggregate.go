package calc

import "perpsignal/internal/model"

const fifteenMinMs = 15 * 60 * 1000

// Aggregate15m folds the closed 1m candles falling inside the 15-minute
// window starting at windowOpenMs into a single Candle15m. closed must be
// ordered oldest-first. Ready is false if no 1m candle falls in the window.
func Aggregate15m(symbol string, closed []model.Candle1m, windowOpenMs int64) (model.Candle15m, bool) {
	windowEnd := windowOpenMs + fifteenMinMs

	var out model.Candle15m
	found := false
	for _, c := range closed {
		if c.OpenTime < windowOpenMs || c.OpenTime >= windowEnd {
			continue
		}
		if !found {
			out = model.Candle15m{
				Symbol:   symbol,
				OpenTime: windowOpenMs,
				Open:     c.Open,
				High:     c.High,
				Low:      c.Low,
				Close:    c.Close,
			}
			found = true
			continue
		}
		if c.High > out.High {
			out.High = c.High
		}
		if c.Low < out.Low {
			out.Low = c.Low
		}
		out.Close = c.Close
	}
	return out, found
}

// Last20mHighLow returns the highest high and lowest low across the
// given closed 1m candles whose OpenTime is at or after nowMs - 20m. Ready
// is false if no candles fall in the window.
func Last20mHighLow(closed []model.Candle1m, nowMs int64) (high, low float64, ready bool) {
	sinceMs := nowMs - 20*60*1000
	for _, c := range closed {
		if c.OpenTime < sinceMs {
			continue
		}
		if !ready {
			high, low, ready = c.High, c.Low, true
			continue
		}
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low, ready
}
