package strategy

import (
	"perpsignal/config"
	"perpsignal/internal/calc"
	"perpsignal/internal/model"
)

// LiquidationFollow trend-follows a move accompanied by a rising open
// interest and funding that agrees with the move's direction — read as
// fresh positioning piling on rather than a squeeze unwinding.
type LiquidationFollow struct {
	oiDeltaPctThreshold float64
	returnThreshold     float64
	leverage            int
	ttlMinutes          int
	maxRiskUSDT         float64
	priority            int
}

func NewLiquidationFollow(cfg *config.Config) *LiquidationFollow {
	return &LiquidationFollow{
		oiDeltaPctThreshold: cfg.OIDeltaPctThreshold,
		returnThreshold:     cfg.ReturnThreshold,
		leverage:            cfg.LeverageSuggest,
		ttlMinutes:          cfg.TTLMinutes,
		maxRiskUSDT:         cfg.MaxRiskUSDT,
		priority:            cfg.PriorityByStrategy["liquidation_follow"],
	}
}

func (s *LiquidationFollow) Name() string { return "liquidation_follow" }

func (s *LiquidationFollow) Generate(ctx model.SignalContext) (*model.ProposalCard, bool) {
	if !ctx.PriceFresh || !ctx.FundingFresh || !ctx.OIDelta15mOK || !ctx.Ret5mReady {
		return nil, false
	}
	if ctx.OIDelta15m < s.oiDeltaPctThreshold || absF(ctx.Ret5m) < s.returnThreshold {
		return nil, false
	}
	if sign(ctx.FundingRate) != sign(ctx.Ret5m) || sign(ctx.Ret5m) == 0 {
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

	confidence := clampConfidence(45 + int((ctx.OIDelta15m-s.oiDeltaPctThreshold)*200) + int((absF(ctx.Ret5m)-s.returnThreshold)*400))

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
		Rationale:       "rising open interest and funding agree with the move, following the trend",
		Priority:        s.priority,
		Confidence:      confidence,
		CreatedAtMs:     ctx.NowMs,
	}, true
}
