// Package clock abstracts time for the scheduler so tests can drive it by hand.
package clock

import (
	"context"
	"time"
)

// Clock supplies the current time and deadline waits.
type Clock interface {
	Now() time.Time
	// WaitUntil returns a channel that receives once the clock reaches t.
	// stop releases the wait; it is safe to call more than once.
	WaitUntil(t time.Time) (ch <-chan time.Time, stop func())
}

// Real is the wall clock. time.Now carries a monotonic reading, so deadlines
// computed from Now are immune to wall-clock jumps.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) WaitUntil(t time.Time) (<-chan time.Time, func()) {
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	tmr := time.NewTimer(d)
	return tmr.C, func() { tmr.Stop() }
}

// SleepUntil blocks until c reaches t or ctx is done, whichever comes first.
func SleepUntil(ctx context.Context, c Clock, t time.Time) error {
	ch, stop := c.WaitUntil(t)
	defer stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
