package strategy

import (
	"testing"

	"perpsignal/config"
	"perpsignal/internal/model"
)

func liquidationFollowConfig() *config.Config {
	return &config.Config{
		OIDeltaPctThreshold: 0.02,
		ReturnThreshold:     0.005,
		LeverageSuggest:     5,
		TTLMinutes:          30,
		MaxRiskUSDT:         50,
		PriorityByStrategy:  map[string]int{"liquidation_follow": 2},
	}
}

func baseFollowCtx() model.SignalContext {
	return model.SignalContext{
		Symbol:       "BTCUSDT",
		NowMs:        1_000_000,
		Price:        100,
		PriceFresh:   true,
		FundingFresh: true,
		OIDelta15mOK: true,
		Ret5mReady:   true,
		ATR15mReady:  true,
		ATR15m:       1,
	}
}

func TestLiquidationFollow_FollowsUptrend(t *testing.T) {
	s := NewLiquidationFollow(liquidationFollowConfig())
	ctx := baseFollowCtx()
	ctx.OIDelta15m = 0.03
	ctx.Ret5m = 0.01
	ctx.FundingRate = 0.0002

	card, ok := s.Generate(ctx)
	if !ok || card == nil {
		t.Fatal("expected a card for a rising OI uptrend with agreeing funding")
	}
	if card.Side != model.SideLong {
		t.Fatalf("expected LONG, got %s", card.Side)
	}
}

func TestLiquidationFollow_FollowsDowntrend(t *testing.T) {
	s := NewLiquidationFollow(liquidationFollowConfig())
	ctx := baseFollowCtx()
	ctx.OIDelta15m = 0.03
	ctx.Ret5m = -0.01
	ctx.FundingRate = -0.0002

	card, ok := s.Generate(ctx)
	if !ok || card == nil {
		t.Fatal("expected a card for a rising OI downtrend with agreeing funding")
	}
	if card.Side != model.SideShort {
		t.Fatalf("expected SHORT, got %s", card.Side)
	}
}

func TestLiquidationFollow_GatesOnLowOIDelta(t *testing.T) {
	s := NewLiquidationFollow(liquidationFollowConfig())
	ctx := baseFollowCtx()
	ctx.OIDelta15m = 0.005
	ctx.Ret5m = 0.01
	ctx.FundingRate = 0.0002

	if _, ok := s.Generate(ctx); ok {
		t.Fatal("expected no card when OI delta is below threshold")
	}
}

func TestLiquidationFollow_GatesOnDisagreeingFunding(t *testing.T) {
	s := NewLiquidationFollow(liquidationFollowConfig())
	ctx := baseFollowCtx()
	ctx.OIDelta15m = 0.03
	ctx.Ret5m = 0.01
	ctx.FundingRate = -0.0002

	if _, ok := s.Generate(ctx); ok {
		t.Fatal("expected no card when funding sign disagrees with the move")
	}
}
