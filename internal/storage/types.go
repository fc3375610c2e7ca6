package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// DefaultKeepPerJob bounds how many runs per job a store retains.
const DefaultKeepPerJob = 500

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// KeepPerJob caps retained runs per job; <= 0 means DefaultKeepPerJob.
	KeepPerJob int
}

// RunEntry records one finished job execution.
type RunEntry struct {
	At       time.Time `json:"at"`
	Job      string    `json:"job"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
	Failures int       `json:"failures"`
}
