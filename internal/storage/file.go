package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "dchbot/pkg/logx"
)

// fileStore keeps run history in <path> as JSON Lines and serves reads from
// an in-memory tail per job. When the file has accumulated enough records
// beyond what is retained, it is rewritten from memory.
type fileStore struct {
	log  logx.Logger
	path string
	keep int

	mu      sync.Mutex
	f       *os.File
	runs    map[string][]RunEntry // oldest first, at most keep per job
	written int                   // lines in file not accounted for by runs
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, keep: cfg.KeepPerJob, runs: map[string][]RunEntry{}}
	if err := s.replay(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	return s, nil
}

func (s *fileStore) replay() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	bad := 0
	for sc.Scan() {
		var e RunEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.Job == "" {
			bad++
			continue
		}
		s.add(e)
	}
	if bad > 0 {
		s.log.Warn("skipped unreadable run records", logx.Int("count", bad), logx.String("path", s.path))
	}
	return sc.Err()
}

// add appends e to the in-memory tail. Caller holds mu (or owns s).
func (s *fileStore) add(e RunEntry) {
	runs := append(s.runs[e.Job], e)
	if over := len(runs) - s.keep; over > 0 {
		runs = append(runs[:0:0], runs[over:]...)
		s.written += over
	}
	s.runs[e.Job] = runs
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRun(_ context.Context, e RunEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if _, err := s.f.Write(b); err != nil {
		return err
	}
	s.add(e)
	if s.written >= s.keep {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("run history compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(_ context.Context, job string, limit int) ([]RunEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}
	runs := s.runs[job]
	if limit <= 0 || len(runs) == 0 {
		return nil, nil
	}
	n := min(limit, len(runs))
	out := make([]RunEntry, 0, n)
	for i := len(runs) - 1; i >= len(runs)-n; i-- {
		out = append(out, runs[i])
	}
	return out, nil
}

// compactLocked rewrites the file from memory via a temp file and rename.
func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, runs := range s.runs {
		for _, e := range runs {
			if err := enc.Encode(e); err != nil {
				_ = f.Close()
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	nf, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	_ = s.f.Close()
	s.f = nf
	s.written = 0
	return nil
}
