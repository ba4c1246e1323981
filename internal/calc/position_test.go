package calc

import "testing"

func TestPositionSizeUSDT(t *testing.T) {
	// 1% risk distance, $50 max risk -> $5000 notional
	got := PositionSizeUSDT(100, 99, 50)
	if got != 5000 {
		t.Fatalf("expected 5000, got %v", got)
	}
}

func TestPositionSizeUSDT_ZeroDistance(t *testing.T) {
	if got := PositionSizeUSDT(100, 100, 50); got != 0 {
		t.Fatalf("expected 0 for zero stop distance, got %v", got)
	}
}
