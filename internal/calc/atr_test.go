package calc

import (
	"testing"

	"perpsignal/internal/model"
)

func c15(openTime int64, o, h, l, c float64) model.Candle15m {
	return model.Candle15m{OpenTime: openTime, Open: o, High: h, Low: l, Close: c}
}

func TestATR14_NotReady(t *testing.T) {
	candles := []model.Candle15m{c15(0, 100, 101, 99, 100)}
	if _, ready := ATR14(candles); ready {
		t.Fatal("expected not ready with a single candle")
	}
}

func TestATR14_ConstantRange(t *testing.T) {
	candles := make([]model.Candle15m, 0, 16)
	price := 100.0
	for i := int64(0); i < 16; i++ {
		candles = append(candles, c15(i*900_000, price, price+1, price-1, price))
	}
	atr, ready := ATR14(candles)
	if !ready {
		t.Fatal("expected ready")
	}
	if atr != 2 {
		t.Fatalf("expected ATR=2 (constant true range), got %v", atr)
	}
}
