package calc

import (
	"testing"

	"perpsignal/internal/model"
)

func candleAt(openTime int64, close float64) model.Candle1m {
	return model.Candle1m{OpenTime: openTime, CloseTime: openTime + 60_000, Close: close, IsClosed: true}
}

func TestRet5m_NotReady(t *testing.T) {
	closed := []model.Candle1m{candleAt(0, 100), candleAt(60_000, 101)}
	if _, ready := Ret5m(closed); ready {
		t.Fatal("expected not ready with < 6 candles")
	}
}

func TestRet5m_Computes(t *testing.T) {
	closed := make([]model.Candle1m, 0, 6)
	for i := int64(0); i < 6; i++ {
		closed = append(closed, candleAt(i*60_000, 100+float64(i)))
	}
	ret, ready := Ret5m(closed)
	if !ready {
		t.Fatal("expected ready")
	}
	want := (105.0 - 100.0) / 100.0
	if ret != want {
		t.Fatalf("expected %v, got %v", want, ret)
	}
}
