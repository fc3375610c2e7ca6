package config

import "strings"

// Job kinds.
const (
	JobKindPrices = "prices"
	JobKindTown   = "town"
)

// DefaultJobName is the job registered when the config lists none.
const DefaultJobName = "fetch_prices"

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`

	// Scheduler controls the scheduling loop.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls the worker pool used when scheduler.dispatch is "pool".
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Towns TownsConfig `json:"towns"`

	// Jobs lists the recurring fetches. Omitted means one "fetch_prices" job.
	Jobs []JobConfig `json:"jobs,omitempty"`

	// FetchOnStart runs every job once right after startup. Default true.
	FetchOnStart *bool `json:"fetch_on_start,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Systemd SystemdConfig  `json:"systemd"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log records at or above MinLevel to telegram.chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// SchedulerConfig durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults:
//   - poll_interval: "1s"
//   - default_timeout: "0s" (none)
//   - history_size: 100
//   - dispatch: "inline"
type SchedulerConfig struct {
	PollInterval   string `json:"poll_interval,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	Dispatch       string `json:"dispatch,omitempty"`
}

// TaskEngineConfig controls the worker pool.
//
// Enabled is a pointer so we can distinguish "omitted" (follow
// scheduler.dispatch) from an explicit false.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type TownsConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// RatePerSec limits outgoing requests; 0 disables the limit.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

// JobConfig describes one recurring fetch.
//
// Interval accepts a Go duration ("55m"), HH:MM ("00:50") or either with an
// "interval:"/"every:" prefix.
type JobConfig struct {
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"` // prices (default) | town
	Interval string `json:"interval"`
	TownID   string `json:"town_id,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
	// FailureBackoffMax enables exponential spacing of retries after
	// consecutive failures, capped at this duration.
	FailureBackoffMax string `json:"failure_backoff_max,omitempty"`
}

// StorageConfig controls the run history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./dchbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type SystemdConfig struct {
	// Notify sends READY/STOPPING/WATCHDOG notifications when running under
	// systemd (NOTIFY_SOCKET set). Ignored elsewhere.
	Notify bool `json:"notify"`
}

// EffectiveJobs returns the configured jobs, or the single default price job.
func (c *Config) EffectiveJobs() []JobConfig {
	if c == nil || len(c.Jobs) == 0 {
		return []JobConfig{{Name: DefaultJobName, Kind: JobKindPrices, Interval: "5m"}}
	}
	out := make([]JobConfig, len(c.Jobs))
	for i, j := range c.Jobs {
		j.Name = strings.TrimSpace(j.Name)
		j.Kind = strings.ToLower(strings.TrimSpace(j.Kind))
		if j.Kind == "" {
			j.Kind = JobKindPrices
		}
		out[i] = j
	}
	return out
}

func (c *Config) FetchOnStartEnabled() bool {
	if c == nil || c.FetchOnStart == nil {
		return true
	}
	return *c.FetchOnStart
}

// TaskEngineEnabled reports whether the worker pool should run.
func (c *Config) TaskEngineEnabled() bool {
	if c == nil {
		return false
	}
	if c.TaskEngine != nil && c.TaskEngine.Enabled != nil {
		return *c.TaskEngine.Enabled
	}
	return strings.EqualFold(strings.TrimSpace(c.Scheduler.Dispatch), "pool")
}
