package ringbuf

import (
	"sync"
	"testing"
	"time"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New[string](4) // rounds to 4

	if !r.Push("A") {
		t.Fatal("push A should succeed")
	}
	if !r.Push("B") {
		t.Fatal("push B should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got != "A" {
		t.Fatalf("expected A, got %v ok=%v", got, ok)
	}

	got, ok = r.Pop()
	if !ok || got != "B" {
		t.Fatalf("expected B, got %v ok=%v", got, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New[int](2) // capacity = 2

	r.Push(1)
	r.Push(2)

	// Buffer is full
	ok := r.Push(3)
	if ok {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)

	// Fill and drain multiple times to test wraparound
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(round*10 + i) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			v, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if v != round*10+i {
				t.Fatalf("round %d pop %d: expected %d, got %d", round, i, round*10+i, v)
			}
		}
	}
}

func TestRing_Snapshot(t *testing.T) {
	r := New[float64](8)
	r.Push(1.5)
	r.Push(2.5)
	r.Push(3.5)

	snap := r.Snapshot()
	if len(snap) != 3 || snap[0] != 1.5 || snap[2] != 3.5 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
	// Snapshot must not consume.
	if r.Len() != 3 {
		t.Fatalf("expected len=3 after snapshot, got %d", r.Len())
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New[int64](1024)

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(int64(i)) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	// Consumer
	received := make([]int64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			v, ok := r.Pop()
			if ok {
				received = append(received, v)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	// Verify ordering
	for i, v := range received {
		if v != int64(i) {
			t.Fatalf("at index %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
