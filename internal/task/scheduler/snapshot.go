package scheduler

import "time"

type JobInfo struct {
	Name          string        `json:"name"`
	Interval      time.Duration `json:"interval"`
	Timeout       time.Duration `json:"timeout"`
	NextRun       time.Time     `json:"next_run"`
	LastRun       time.Time     `json:"last_run"`
	LastDuration  time.Duration `json:"last_duration"`
	LastError     string        `json:"last_error,omitempty"`
	FailureCount  int           `json:"failure_count"`
	Runs          uint64        `json:"runs"`
	TotalFailures uint64        `json:"total_failures"`
	Running       bool          `json:"running"`
}

// RunRecord is one completed execution.
type RunRecord struct {
	Job      string        `json:"job"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Failures int           `json:"failures"`
	Error    string        `json:"error,omitempty"`
}

type Snapshot struct {
	Running      bool          `json:"running"`
	Dispatch     string        `json:"dispatch"`
	PollInterval time.Duration `json:"poll_interval"`
	Jobs         []JobInfo     `json:"jobs"`
	History      []RunRecord   `json:"history"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running:      s.cur != nil,
		Dispatch:     s.cfg.Dispatch,
		PollInterval: s.cfg.PollInterval,
		Jobs:         make([]JobInfo, 0, len(s.order)),
	}
	for _, e := range s.order {
		snap.Jobs = append(snap.Jobs, infoLocked(e))
	}
	s.mu.Unlock()

	s.hmu.Lock()
	snap.History = append([]RunRecord(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

// Job returns the current view of one job.
func (s *Service) Job(name string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return JobInfo{}, false
	}
	return infoLocked(e), true
}

func infoLocked(e *entry) JobInfo {
	j := e.job
	return JobInfo{
		Name:          j.name,
		Interval:      j.interval,
		Timeout:       j.timeout,
		NextRun:       j.nextRun,
		LastRun:       j.lastRun,
		LastDuration:  j.lastDuration,
		LastError:     j.lastErr,
		FailureCount:  j.failures,
		Runs:          j.runs,
		TotalFailures: j.totalFailures,
		Running:       e.running,
	}
}

func (s *Service) record(rec RunRecord) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, rec)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}
