package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeWaitUntilReleasesOnAdvance(t *testing.T) {
	t.Parallel()
	f := NewFake(epoch)
	ch, stop := f.WaitUntil(epoch.Add(5 * time.Second))
	defer stop()

	f.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("waiter released before deadline")
	default:
	}

	f.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(5 * time.Second)) {
			t.Fatalf("released at %v", got)
		}
	default:
		t.Fatal("waiter not released at deadline")
	}
	if n := f.Waiters(); n != 0 {
		t.Fatalf("Waiters = %d, want 0", n)
	}
}

func TestFakeWaitUntilPastDeadline(t *testing.T) {
	t.Parallel()
	f := NewFake(epoch)
	ch, _ := f.WaitUntil(epoch.Add(-time.Second))
	select {
	case <-ch:
	default:
		t.Fatal("past deadline should fire immediately")
	}
}

func TestFakeStopRemovesWaiter(t *testing.T) {
	t.Parallel()
	f := NewFake(epoch)
	_, stop := f.WaitUntil(epoch.Add(time.Minute))
	if f.Waiters() != 1 {
		t.Fatalf("Waiters = %d, want 1", f.Waiters())
	}
	stop()
	stop()
	if f.Waiters() != 0 {
		t.Fatalf("Waiters = %d, want 0", f.Waiters())
	}
}

func TestFakeSetIgnoresBackwards(t *testing.T) {
	t.Parallel()
	f := NewFake(epoch)
	f.Set(epoch.Add(-time.Hour))
	if !f.Now().Equal(epoch) {
		t.Fatalf("Now = %v, want %v", f.Now(), epoch)
	}
}

func TestSleepUntilCanceled(t *testing.T) {
	t.Parallel()
	f := NewFake(epoch)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- SleepUntil(ctx, f, epoch.Add(time.Hour)) }()

	bctx, bcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer bcancel()
	if err := f.BlockUntil(bctx, 1); err != nil {
		t.Fatalf("BlockUntil: %v", err)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("SleepUntil err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SleepUntil did not return after cancel")
	}
	if f.Waiters() != 0 {
		t.Fatalf("waiter leaked after cancel")
	}
}

func TestRealSleepUntil(t *testing.T) {
	t.Parallel()
	var c Real
	start := time.Now()
	if err := SleepUntil(context.Background(), c, c.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("SleepUntil: %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("returned too early")
	}
}
