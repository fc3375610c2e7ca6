package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually driven Clock. Time only moves on Advance or Set; waiters
// whose deadline has been reached are released at that moment.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters map[*fakeWaiter]struct{}
	changed chan struct{} // closed and replaced whenever the waiter set grows
}

type fakeWaiter struct {
	at time.Time
	ch chan time.Time
}

// NewFake returns a fake clock reading start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:     start,
		waiters: map[*fakeWaiter]struct{}{},
		changed: make(chan struct{}),
	}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) WaitUntil(t time.Time) (<-chan time.Time, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if !t.After(f.now) {
		ch <- f.now
		return ch, func() {}
	}
	w := &fakeWaiter{at: t, ch: ch}
	f.waiters[w] = struct{}{}
	close(f.changed)
	f.changed = make(chan struct{})

	return ch, func() {
		f.mu.Lock()
		delete(f.waiters, w)
		f.mu.Unlock()
	}
}

// Advance moves the clock forward by d and releases due waiters.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.setLocked(f.now.Add(d))
	f.mu.Unlock()
}

// Set moves the clock to t. Moving backwards is ignored.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	if t.After(f.now) {
		f.setLocked(t)
	}
	f.mu.Unlock()
}

func (f *Fake) setLocked(t time.Time) {
	f.now = t
	for w := range f.waiters {
		if !w.at.After(t) {
			w.ch <- t
			delete(f.waiters, w)
		}
	}
}

// Waiters returns the number of pending waits.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// BlockUntil waits until at least n waits are pending or ctx is done.
// Tests use it to know the code under test has gone to sleep.
func (f *Fake) BlockUntil(ctx context.Context, n int) error {
	for {
		f.mu.Lock()
		if len(f.waiters) >= n {
			f.mu.Unlock()
			return nil
		}
		changed := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
