package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"dchbot/internal/task/scheduler"
)

// Validate checks everything that can be checked without side effects.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval)
	add(err)
	_, err = ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	add(err)
	switch strings.ToLower(strings.TrimSpace(cfg.Scheduler.Dispatch)) {
	case "", scheduler.DispatchInline, scheduler.DispatchPool:
	default:
		add(fmt.Errorf("scheduler.dispatch: must be %q or %q, got %q", scheduler.DispatchInline, scheduler.DispatchPool, cfg.Scheduler.Dispatch))
	}
	if cfg.Scheduler.HistorySize < 0 {
		add(errors.New("scheduler.history_size: must be >= 0"))
	}

	if te := cfg.TaskEngine; te != nil {
		_, err = ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
		add(err)
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
			add(errors.New("task_engine: workers, queue_size and history_size must be >= 0"))
		}
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Scheduler.Dispatch), scheduler.DispatchPool) && !cfg.TaskEngineEnabled() {
		add(errors.New("scheduler.dispatch is \"pool\" but task_engine.enabled is false"))
	}

	if raw := strings.TrimSpace(cfg.Towns.BaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(fmt.Errorf("towns.base_url: invalid url %q", raw))
		}
	}
	_, err = ParseDurationField("towns.timeout", cfg.Towns.Timeout)
	add(err)
	if cfg.Towns.RatePerSec < 0 || cfg.Towns.Burst < 0 {
		add(errors.New("towns: rate_per_sec and burst must be >= 0"))
	}

	seen := map[string]bool{}
	for i, j := range cfg.EffectiveJobs() {
		path := fmt.Sprintf("jobs[%d]", i)
		if j.Name == "" {
			add(fmt.Errorf("%s.name: required", path))
		} else if seen[j.Name] {
			add(fmt.Errorf("%s.name: duplicate job name %q", path, j.Name))
		}
		seen[j.Name] = true

		switch j.Kind {
		case JobKindPrices:
		case JobKindTown:
			if strings.TrimSpace(j.TownID) == "" {
				add(fmt.Errorf("%s.town_id: required for kind %q", path, JobKindTown))
			}
		default:
			add(fmt.Errorf("%s.kind: unknown kind %q", path, j.Kind))
		}

		_, err := ParseIntervalField(path+".interval", j.Interval)
		add(err)
		_, err = ParseDurationField(path+".timeout", j.Timeout)
		add(err)
		_, err = ParseDurationField(path+".failure_backoff_max", j.FailureBackoffMax)
		add(err)
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				add(fmt.Errorf("storage.path: required for driver %q", s.Driver))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}

	if cfg.Logging.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" || cfg.Telegram.ChatID == 0 {
			add(errors.New("logging.telegram: requires telegram.token and telegram.chat_id"))
		}
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	return errors.Join(errs...)
}
