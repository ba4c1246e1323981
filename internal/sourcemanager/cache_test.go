package sourcemanager

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := newCircuitBreaker(3, 50*time.Millisecond)
	failing := func() error { return errors.New("boom") }

	for i := 0; i < 2; i++ {
		if err := cb.execute(failing); err == nil {
			t.Fatalf("expected failure on attempt %d", i)
		}
		if cb.currentState() != circuitClosed {
			t.Fatalf("breaker should stay closed before maxFailures, got %v", cb.currentState())
		}
	}

	if err := cb.execute(failing); err == nil {
		t.Fatal("expected failure on the tripping attempt")
	}
	if cb.currentState() != circuitOpen {
		t.Fatalf("expected open after maxFailures consecutive failures, got %v", cb.currentState())
	}

	if err := cb.execute(func() error { return nil }); err != errCircuitOpen {
		t.Fatalf("expected errCircuitOpen while breaker is open, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenProbeRecloses(t *testing.T) {
	cb := newCircuitBreaker(1, 10*time.Millisecond)
	cb.execute(func() error { return errors.New("boom") })
	if cb.currentState() != circuitOpen {
		t.Fatalf("expected open after single failure with maxFailures=1, got %v", cb.currentState())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call should have been allowed through: %v", err)
	}
	if cb.currentState() != circuitClosed {
		t.Fatalf("successful probe should close the breaker, got %v", cb.currentState())
	}
}

func TestCircuitBreaker_HalfOpenProbeReopensOnFailure(t *testing.T) {
	cb := newCircuitBreaker(1, 10*time.Millisecond)
	cb.execute(func() error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	if err := cb.execute(func() error { return errors.New("still broken") }); err == nil {
		t.Fatal("expected probe failure to be returned")
	}
	if cb.currentState() != circuitOpen {
		t.Fatalf("failed probe should reopen the breaker, got %v", cb.currentState())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []circuitState
	cb := newCircuitBreaker(1, 10*time.Millisecond)
	cb.onStateChange = func(from, to circuitState) {
		transitions = append(transitions, to)
	}

	cb.execute(func() error { return errors.New("boom") })
	if len(transitions) != 1 || transitions[0] != circuitOpen {
		t.Fatalf("expected a single transition to circuitOpen, got %v", transitions)
	}
}
