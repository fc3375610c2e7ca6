package app

import (
	"strings"
	"time"

	"dchbot/internal/config"
	"dchbot/internal/storage"
	"dchbot/internal/task/engine"
	"dchbot/internal/task/scheduler"
	"dchbot/internal/towns"
	logx "dchbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	timeout, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		PollInterval:   poll,
		DefaultTimeout: timeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Dispatch:       cfg.Scheduler.Dispatch,
	}, nil
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Enabled: cfg.TaskEngineEnabled()}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	timeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	out.Workers = te.Workers
	out.QueueSize = te.QueueSize
	out.DefaultTimeout = timeout
	out.HistorySize = te.HistorySize
	return out, nil
}

func mapTownsConfig(cfg *config.Config) (towns.Config, error) {
	timeout, err := config.ParseDurationField("towns.timeout", cfg.Towns.Timeout)
	if err != nil {
		return towns.Config{}, err
	}
	return towns.Config{
		BaseURL:    strings.TrimSpace(cfg.Towns.BaseURL),
		Timeout:    timeout,
		UserAgent:  strings.TrimSpace(cfg.Towns.UserAgent),
		RatePerSec: cfg.Towns.RatePerSec,
		Burst:      cfg.Towns.Burst,
	}, nil
}

// mapStorageConfig returns enabled=false when the storage section is omitted
// or its driver is "none".
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.DurationOr("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}
