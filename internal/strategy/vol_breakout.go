package strategy

import (
	"perpsignal/config"
	"perpsignal/internal/calc"
	"perpsignal/internal/model"
)

// VolBreakout fires on a sharp 5m move or an ATR spike relative to its
// 24h baseline, trading in the direction of the move without a view on
// positioning (funding/OI), unlike the other three strategies.
type VolBreakout struct {
	returnThreshold    float64
	atrSpikeMultiplier float64
	leverage           int
	ttlMinutes         int
	maxRiskUSDT        float64
	priority           int
}

func NewVolBreakout(cfg *config.Config) *VolBreakout {
	return &VolBreakout{
		returnThreshold:    cfg.ReturnThreshold,
		atrSpikeMultiplier: cfg.ATRSpikeMultiplier,
		leverage:           cfg.LeverageSuggest,
		ttlMinutes:         cfg.TTLMinutes,
		maxRiskUSDT:        cfg.MaxRiskUSDT,
		priority:           cfg.PriorityByStrategy["vol_breakout"],
	}
}

func (s *VolBreakout) Name() string { return "vol_breakout" }

func (s *VolBreakout) Generate(ctx model.SignalContext) (*model.ProposalCard, bool) {
	if !ctx.PriceFresh || !ctx.Ret5mReady {
		return nil, false
	}

	retBreak := absF(ctx.Ret5m) > s.returnThreshold
	atrBreak := ctx.ATR15mReady && ctx.ATRBaselineOK && ctx.ATR15m > ctx.ATRBaseline*s.atrSpikeMultiplier
	if !retBreak && !atrBreak {
		return nil, false
	}

	side := model.SideLong
	if ctx.Ret5m < 0 {
		side = model.SideShort
	}

	entry := ctx.Price
	var stop float64
	if ctx.ATR15mReady {
		stop = defaultStopFromATR(side, entry, ctx.ATR15m)
	} else {
		stop = defaultStopFromATR(side, entry, entry*0.005)
	}

	confidence := 35
	if retBreak {
		confidence += int((absF(ctx.Ret5m) - s.returnThreshold) * 500)
	}
	if atrBreak {
		confidence += int((ctx.ATR15m/ctx.ATRBaseline - s.atrSpikeMultiplier) * 20)
	}
	confidence = clampConfidence(confidence)

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
		Rationale:       "sharp 5m move or ATR spike above baseline, trading with the move",
		Priority:        s.priority,
		Confidence:      confidence,
		CreatedAtMs:     ctx.NowMs,
	}, true
}
