package strategy

import (
	"perpsignal/config"
	"perpsignal/internal/calc"
	"perpsignal/internal/model"
)

// FakeBreakoutReversal detects a liquidity sweep beyond the last 20m
// high/low that closes back inside range with a long wick, and proposes
// a reversal against the sweep direction.
type FakeBreakoutReversal struct {
	sweepPct      float64
	wickBodyRatio float64
	stopBufferATR float64
	minATRPct     float64
	leverage      int
	ttlMinutes    int
	maxRiskUSDT   float64
	priority      int
}

// NewFakeBreakoutReversal builds the strategy from configuration.
func NewFakeBreakoutReversal(cfg *config.Config) *FakeBreakoutReversal {
	return &FakeBreakoutReversal{
		sweepPct:      cfg.SweepPct,
		wickBodyRatio: cfg.WickBodyRatio,
		stopBufferATR: cfg.StopBufferATR,
		minATRPct:     cfg.MinATRPct,
		leverage:      cfg.LeverageSuggest,
		ttlMinutes:    cfg.TTLMinutes,
		maxRiskUSDT:   cfg.MaxRiskUSDT,
		priority:      cfg.PriorityByStrategy["fake_breakout_reversal"],
	}
}

func (s *FakeBreakoutReversal) Name() string { return "fake_breakout_reversal" }

func (s *FakeBreakoutReversal) Generate(ctx model.SignalContext) (*model.ProposalCard, bool) {
	if !ctx.PriceFresh || !ctx.KlineFresh || !ctx.ATR15mReady || len(ctx.RecentClosed) == 0 {
		return nil, false
	}
	if ctx.Price == 0 || ctx.ATR15m/ctx.Price < s.minATRPct {
		return nil, false
	}

	c := ctx.RecentClosed[len(ctx.RecentClosed)-1]
	age := ctx.NowMs - c.CloseTime
	if age < 0 || age > 90_000 {
		return nil, false
	}

	body := absF(c.Close - c.Open)
	if body == 0 {
		return nil, false
	}

	if upperWick := c.High - maxF(c.Open, c.Close); c.High > ctx.Last20mHigh*(1+s.sweepPct) &&
		c.Close < ctx.Last20mHigh && upperWick/body >= s.wickBodyRatio {
		entry := ctx.Price
		stop := c.High + s.stopBufferATR*ctx.ATR15m
		excess := (c.High - ctx.Last20mHigh*(1+s.sweepPct)) / ctx.Last20mHigh
		return s.buildCard(ctx, model.SideShort, entry, stop, confidenceFromExcess(excess, upperWick/body, s.wickBodyRatio))
	}

	if lowerWick := minF(c.Open, c.Close) - c.Low; c.Low < ctx.Last20mLow*(1-s.sweepPct) &&
		c.Close > ctx.Last20mLow && lowerWick/body >= s.wickBodyRatio {
		entry := ctx.Price
		stop := c.Low - s.stopBufferATR*ctx.ATR15m
		excess := (ctx.Last20mLow*(1-s.sweepPct) - c.Low) / ctx.Last20mLow
		return s.buildCard(ctx, model.SideLong, entry, stop, confidenceFromExcess(excess, lowerWick/body, s.wickBodyRatio))
	}

	return nil, false
}

func confidenceFromExcess(excess, wickRatio, minWickRatio float64) int {
	base := 50
	base += int(excess * 4000) // each 1% beyond the sweep threshold adds 40 points, clamped below
	base += int((wickRatio - minWickRatio) * 10)
	return clampConfidence(base)
}

func (s *FakeBreakoutReversal) buildCard(ctx model.SignalContext, side model.Side, entry, stop float64, confidence int) (*model.ProposalCard, bool) {
	positionUSDT := calc.PositionSizeUSDT(entry, stop, s.maxRiskUSDT)
	if positionUSDT <= 0 {
		return nil, false
	}
	return &model.ProposalCard{
		Symbol:          ctx.Symbol,
		Strategy:        s.Name(),
		Side:            side,
		Entry:           entry,
		Stop:            stop,
		LeverageSuggest: s.leverage,
		PositionUSDT:    positionUSDT,
		MaxRiskUSDT:     s.maxRiskUSDT,
		TTLMinutes:      s.ttlMinutes,
		Rationale:       "liquidity sweep beyond 20m range, closed back inside",
		Priority:        s.priority,
		Confidence:      confidence,
		CreatedAtMs:     ctx.NowMs,
	}, true
}
