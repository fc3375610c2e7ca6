package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MinInterval is the shortest accepted job interval.
const MinInterval = time.Second

// Action is the work a job performs on every run.
type Action interface {
	Execute(ctx context.Context) error
}

type ActionFunc func(ctx context.Context) error

func (f ActionFunc) Execute(ctx context.Context) error { return f(ctx) }

// Produce adapts a value-returning function into an Action. onResult, if set,
// receives the value of every successful call.
func Produce[T any](fn func(ctx context.Context) (T, error), onResult func(T)) Action {
	return ActionFunc(func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		if onResult != nil {
			onResult(v)
		}
		return nil
	})
}

type JobOption func(*Job)

// WithTimeout bounds each run of the job. 0 falls back to the scheduler default.
func WithTimeout(d time.Duration) JobOption {
	return func(j *Job) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithFailureBackoff stretches the delay after consecutive failures: interval,
// 2*interval, 4*interval... capped at limit. Success restores the plain interval.
func WithFailureBackoff(limit time.Duration) JobOption {
	return func(j *Job) {
		if limit > 0 {
			j.backoffMax = limit
		}
	}
}

// Job is a named recurring unit of work.
//
// Job is not safe for concurrent use; the Scheduler serializes access.
type Job struct {
	name       string
	interval   time.Duration
	action     Action
	timeout    time.Duration
	backoffMax time.Duration

	nextRun  time.Time
	failures int

	runs          uint64
	totalFailures uint64
	lastRun       time.Time
	lastDuration  time.Duration
	lastErr       string
}

// NewJob validates the definition and schedules the first run at now+interval.
func NewJob(name string, interval time.Duration, action Action, now time.Time, opts ...JobOption) (*Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidConfiguration)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: job %q: interval must be > 0, got %s", ErrInvalidConfiguration, name, interval)
	}
	if interval < MinInterval {
		return nil, fmt.Errorf("%w: job %q: interval %s is below minimum %s", ErrInvalidConfiguration, name, interval, MinInterval)
	}
	if action == nil {
		return nil, fmt.Errorf("%w: job %q: action required", ErrInvalidConfiguration, name)
	}
	j := &Job{
		name:     name,
		interval: interval,
		action:   action,
		nextRun:  now.Add(interval),
	}
	for _, o := range opts {
		if o != nil {
			o(j)
		}
	}
	return j, nil
}

func (j *Job) Name() string { return j.name }
func (j *Job) Interval() time.Duration { return j.interval }
func (j *Job) Timeout() time.Duration { return j.timeout }
func (j *Job) NextRun() time.Time { return j.nextRun }
func (j *Job) FailureCount() int { return j.failures }
func (j *Job) Due(now time.Time) bool { return !now.Before(j.nextRun) }
func (j *Job) Runs() uint64 { return j.runs }
func (j *Job) LastRun() time.Time { return j.lastRun }
func (j *Job) LastError() string { return j.lastErr }
func (j *Job) LastDuration() time.Duration { return j.lastDuration }

// RecordSuccess reschedules at now+interval and clears the failure streak.
func (j *Job) RecordSuccess(now time.Time) {
	j.runs++
	j.failures = 0
	j.lastErr = ""
	j.lastRun = now
	j.nextRun = now.Add(j.interval)
}

// RecordFailure reschedules at now+interval (or the backoff delay when
// configured) and extends the failure streak.
func (j *Job) RecordFailure(now time.Time, err error) {
	j.runs++
	j.totalFailures++
	j.failures++
	j.lastRun = now
	if err != nil {
		j.lastErr = err.Error()
	}
	j.nextRun = now.Add(j.failureDelay())
}

func (j *Job) failureDelay() time.Duration {
	if j.backoffMax <= j.interval {
		return j.interval
	}
	d := j.interval
	for i := 1; i < j.failures; i++ {
		d *= 2
		if d >= j.backoffMax {
			return j.backoffMax
		}
	}
	return d
}

// postpone moves the next run without counting an execution.
func (j *Job) postpone(now time.Time) { j.postponeBy(now, j.interval) }

func (j *Job) postponeBy(now time.Time, d time.Duration) { j.nextRun = now.Add(d) }
