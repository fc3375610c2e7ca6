package scheduler

import (
	"fmt"
	"strings"
	"time"

	logx "dchbot/pkg/logx"
)

// AddJob registers a job whose first run is one interval from now. It may be
// called while the loop is running; the loop re-plans its wait immediately.
func (s *Service) AddJob(name string, interval time.Duration, action Action, opts ...JobOption) error {
	s.mu.Lock()
	j, err := NewJob(name, interval, action, s.clock.Now(), opts...)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.jobs[j.name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateJobName, j.name)
	}
	s.seq++
	e := &entry{job: j, gate: s.gateLocked(j.name), seq: s.seq}
	s.jobs[j.name] = e
	s.order = append(s.order, e)
	s.mu.Unlock()

	s.wakeLoop()
	s.log.Debug("job registered",
		logx.String("job", j.name),
		logx.Duration("interval", j.interval),
		logx.Duration("timeout", j.timeout),
		logx.Time("next", j.nextRun),
	)
	return nil
}

// RemoveJob unregisters a job. A run in progress completes but the job is not
// scheduled again.
func (s *Service) RemoveJob(name string) error {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	e.removed = true
	delete(s.jobs, name)
	for i, o := range s.order {
		if o == e {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	running := e.running
	if !running {
		s.idleLocked(e)
	}
	s.mu.Unlock()

	s.skipMu.Lock()
	delete(s.lastSkipWarn, name)
	s.skipMu.Unlock()

	s.log.Debug("job removed", logx.String("job", name), logx.Bool("running", running))
	return nil
}

// RunNow makes a job due immediately. A job that is already running returns
// ErrJobBusy.
func (s *Service) RunNow(name string) error {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	e, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	if e.running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrJobBusy, name)
	}
	e.job.nextRun = s.clock.Now()
	s.mu.Unlock()

	s.wakeLoop()
	return nil
}

// Has reports whether a job with this name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[strings.TrimSpace(name)]
	return ok
}

// Names lists registered jobs in registration order.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.order))
	for _, e := range s.order {
		out = append(out, e.job.name)
	}
	return out
}
