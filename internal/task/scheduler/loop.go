package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"dchbot/internal/eventbus"
	"dchbot/internal/task/engine"
	logx "dchbot/pkg/logx"
)

const skipWarnThrottle = 30 * time.Second

// JobEvent is the payload of job.* events on the bus.
type JobEvent struct {
	Job      string        `json:"job"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Failures int           `json:"failures"`
	Error    string        `json:"error,omitempty"`
}

func (s *Service) loop(ctx context.Context, r *run) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}

		now := s.clock.Now()
		due, earliest, poll := s.collectDue(now)
		if len(due) > 0 {
			for _, e := range due {
				select {
				case <-r.stopCh:
					return
				default:
				}
				s.dispatch(r, e)
			}
			continue
		}

		deadline := now.Add(poll)
		if !earliest.IsZero() && earliest.Before(deadline) {
			deadline = earliest
		}
		ch, stop := s.clock.WaitUntil(deadline)
		select {
		case <-ctx.Done():
		case <-r.stopCh:
		case <-s.wake:
		case <-ch:
		}
		stop()
	}
}

// collectDue returns the idle jobs due at now, ordered by next run then
// registration, plus the earliest next run among the idle jobs that are not due.
func (s *Service) collectDue(now time.Time) (due []*entry, earliest time.Time, poll time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.order {
		if e.running {
			continue
		}
		if e.job.Due(now) {
			due = append(due, e)
			continue
		}
		if earliest.IsZero() || e.job.nextRun.Before(earliest) {
			earliest = e.job.nextRun
		}
	}
	slices.SortFunc(due, func(a, b *entry) int {
		if c := a.job.nextRun.Compare(b.job.nextRun); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return due, earliest, s.cfg.PollInterval
}

func (s *Service) dispatch(r *run, e *entry) {
	s.mu.Lock()
	if e.removed || e.running {
		s.mu.Unlock()
		return
	}
	// Stop closes stopCh under mu; no Add may follow its Wait.
	select {
	case <-r.stopCh:
		s.mu.Unlock()
		return
	default:
	}
	e.running = true
	r.wg.Add(1)
	mode := s.cfg.Dispatch
	exec := s.exec
	name := e.job.name
	g := e.gate
	s.mu.Unlock()

	if mode != DispatchPool || exec == nil {
		_ = s.execute(r.ctx, r, e, false)
		return
	}

	err := exec.EnqueueWithDrop(engine.Task{
		Name:  "job:" + name,
		State: &g.state,
		Run: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			unlink := context.AfterFunc(r.ctx, cancel)
			defer unlink()
			return s.execute(ctx, r, e, true)
		},
	}, func() { s.release(r, e) })
	if err != nil {
		s.skip(r, e, err)
	}
}

// execute runs the job's action once and records the outcome.
func (s *Service) execute(ctx context.Context, r *run, e *entry, pooled bool) error {
	// A queued execution that starts after Stop is dropped.
	select {
	case <-r.stopCh:
		s.release(r, e)
		return nil
	default:
	}
	defer r.wg.Done()

	s.mu.Lock()
	g := e.gate
	s.mu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	s.mu.Lock()
	job := e.job
	timeout := job.timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	s.mu.Unlock()

	start := s.clock.Now()
	s.publish(eventbus.JobStarted, JobEvent{Job: job.name, Started: start})

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := s.runAction(runCtx, job)

	finish := s.clock.Now()
	dur := finish.Sub(start)

	s.mu.Lock()
	if err != nil {
		job.RecordFailure(finish, err)
	} else {
		job.RecordSuccess(finish)
	}
	job.lastDuration = dur
	failures := job.failures
	next := job.nextRun
	removed := e.removed
	s.idleLocked(e)
	s.mu.Unlock()

	if pooled {
		// The loop excluded this job while it ran; its next run may be earlier
		// than the current wait.
		s.wakeLoop()
	}

	rec := RunRecord{Job: job.name, Started: start, Duration: dur, Failures: failures}
	ev := JobEvent{Job: job.name, Started: start, Duration: dur, Failures: failures}
	if err != nil {
		rec.Error = err.Error()
		ev.Error = rec.Error
		s.log.Warn("job failed",
			logx.String("job", job.name),
			logx.Err(err),
			logx.Int("failures", failures),
			logx.Duration("dur", dur),
			logx.Time("next", next),
		)
		s.publish(eventbus.JobFailed, ev)
	} else {
		s.log.Debug("job finished",
			logx.String("job", job.name),
			logx.Duration("dur", dur),
			logx.Time("next", next),
			logx.Bool("removed", removed),
		)
		s.publish(eventbus.JobFinished, ev)
	}
	s.record(rec)
	return err
}

func (s *Service) runAction(ctx context.Context, job *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			s.log.Error("job panicked", logx.String("job", job.name), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
		}
	}()
	return job.action.Execute(ctx)
}

// release undoes a dispatch that never executed. The job keeps its next run,
// so the loop is woken to reconsider it.
func (s *Service) release(r *run, e *entry) {
	s.mu.Lock()
	s.idleLocked(e)
	s.mu.Unlock()
	r.wg.Done()
	s.wakeLoop()
}

// skip handles a job the executor refused. The run is not counted and its
// failure streak is untouched. A job refused by the executor waits one
// interval; one refused because a run of the same name is still in flight
// retries after MinInterval.
func (s *Service) skip(r *run, e *entry, err error) {
	now := s.clock.Now()
	s.mu.Lock()
	if errors.Is(err, engine.ErrOverlapSkip) {
		e.job.postponeBy(now, MinInterval)
	} else {
		e.job.postpone(now)
	}
	name := e.job.name
	next := e.job.nextRun
	s.idleLocked(e)
	s.mu.Unlock()
	r.wg.Done()

	s.publish(eventbus.JobSkipped, JobEvent{Job: name, Started: now, Error: err.Error()})
	s.reportSkip(name, next, err)
}

func (s *Service) reportSkip(name string, next time.Time, err error) {
	now := time.Now()
	s.skipMu.Lock()
	last := s.lastSkipWarn[name]
	throttled := !last.IsZero() && now.Sub(last) < skipWarnThrottle
	if !throttled {
		s.lastSkipWarn[name] = now
	}
	s.skipMu.Unlock()

	fields := []logx.Field{logx.String("job", name), logx.Err(err), logx.Time("next", next)}
	if throttled || errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("job skipped", fields...)
		return
	}
	s.log.Warn("job skipped", fields...)
}

func (s *Service) publish(typ string, ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.Started.Add(ev.Duration), Data: ev})
}
