package strategy

import (
	"perpsignal/config"
	"perpsignal/internal/calc"
	"perpsignal/internal/model"
)

// FundingOISkew fades a crowded side: extreme funding plus an open-interest
// spike in the same direction as the recent move is read as over-leveraged
// positioning, and the strategy proposes the counter-trend side.
type FundingOISkew struct {
	fundingExtreme    float64
	oiZScoreThreshold float64
	leverage          int
	ttlMinutes        int
	maxRiskUSDT       float64
	priority          int
}

func NewFundingOISkew(cfg *config.Config) *FundingOISkew {
	return &FundingOISkew{
		fundingExtreme:    cfg.FundingExtreme,
		oiZScoreThreshold: cfg.OIZScoreThreshold,
		leverage:          cfg.LeverageSuggest,
		ttlMinutes:        cfg.TTLMinutes,
		maxRiskUSDT:       cfg.MaxRiskUSDT,
		priority:          cfg.PriorityByStrategy["funding_oi_skew"],
	}
}

func (s *FundingOISkew) Name() string { return "funding_oi_skew" }

func (s *FundingOISkew) Generate(ctx model.SignalContext) (*model.ProposalCard, bool) {
	if !ctx.PriceFresh || !ctx.FundingFresh || !ctx.OIFresh || !ctx.OIZScoreOK || !ctx.Ret5mReady {
		return nil, false
	}
	if absF(ctx.FundingRate) < s.fundingExtreme || ctx.OIZScore < s.oiZScoreThreshold {
		return nil, false
	}
	if sign(ctx.FundingRate) != sign(ctx.Ret5m) || sign(ctx.FundingRate) == 0 {
		return nil, false
	}

	// Crowded-long (positive funding, positive momentum) -> fade with SHORT.
	// Crowded-short (negative funding, negative momentum) -> fade with LONG.
	side := model.SideShort
	if ctx.FundingRate < 0 {
		side = model.SideLong
	}

	entry := ctx.Price
	var stop float64
	if ctx.ATR15mReady {
		stop = defaultStopFromATR(side, entry, ctx.ATR15m)
	} else {
		stop = defaultStopFromATR(side, entry, entry*0.005)
	}

	confidence := clampConfidence(40 + int((ctx.OIZScore-s.oiZScoreThreshold)*10) + int(absF(ctx.FundingRate)/s.fundingExtreme*10))

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
		Rationale:       "extreme funding with OI spike in the direction of the move, fading the crowd",
		Priority:        s.priority,
		Confidence:      confidence,
		CreatedAtMs:     ctx.NowMs,
	}, true
}
