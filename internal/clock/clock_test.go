package clock

import (
	"context"
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	if err := f.Sleep(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Elapsed() != 3*time.Second {
		t.Errorf("expected 3s elapsed, got %v", f.Elapsed())
	}
}

func TestFakeHookCancelsSleep(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	f.At(2*time.Second, cancel)

	err := f.Sleep(ctx, 10*time.Second)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.Elapsed() != 2*time.Second {
		t.Errorf("sleep should stop at the hook, elapsed %v", f.Elapsed())
	}
}

func TestFakeHookFiresOnce(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	n := 0
	f.At(time.Second, func() { n++ })

	f.Advance(2 * time.Second)
	f.Advance(2 * time.Second)
	if n != 1 {
		t.Errorf("hook fired %d times, want 1", n)
	}
}

func TestRealSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := (Real{}).Sleep(ctx, time.Minute); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled sleep should return immediately")
	}
}

func TestRealSleepZero(t *testing.T) {
	if err := (Real{}).Sleep(context.Background(), 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
