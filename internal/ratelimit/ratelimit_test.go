package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireFirstIsImmediate(t *testing.T) {
	l := New(time.Second)
	start := time.Now()
	if err := l.Acquire(context.Background(), "engine_a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("first acquire should not block")
	}
}

func TestAcquireEnforcesInterval(t *testing.T) {
	l := New(80 * time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx, "engine_a"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Acquire(ctx, "engine_a"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Errorf("second acquire returned after %v, want >= ~80ms", elapsed)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(time.Second)
	ctx := context.Background()

	if err := l.Acquire(ctx, "engine_a"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Acquire(ctx, "engine_b"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("different keys must not gate each other")
	}
}

func TestAcquireCancel(t *testing.T) {
	l := New(5 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	if err := l.Acquire(ctx, "slow"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, "slow") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after cancel")
	}
}

func TestPerSourceOverride(t *testing.T) {
	l := New(time.Second)
	l.SetInterval("fast", 10*time.Millisecond)

	if got := l.Interval("fast"); got != 10*time.Millisecond {
		t.Errorf("Interval(fast) = %v", got)
	}
	if got := l.Interval("other"); got != time.Second {
		t.Errorf("Interval(other) = %v", got)
	}
}

func TestConcurrentAcquiresSpacedOut(t *testing.T) {
	const interval = 30 * time.Millisecond
	l := New(interval)
	ctx := context.Background()

	var mu sync.Mutex
	var times []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(ctx, "shared"); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 4 {
		t.Fatalf("expected 4 acquisitions, got %d", len(times))
	}
	// Total span must cover at least 3 intervals (with slack for timers).
	var min, max time.Time
	for _, tm := range times {
		if min.IsZero() || tm.Before(min) {
			min = tm
		}
		if tm.After(max) {
			max = tm
		}
	}
	if span := max.Sub(min); span < 3*interval-15*time.Millisecond {
		t.Errorf("4 concurrent acquires spanned only %v, want >= ~%v", span, 3*interval)
	}
}
