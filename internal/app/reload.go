package app

import (
	"context"
	"slices"
	"strings"

	"dchbot/internal/config"
	"dchbot/internal/towns"
	logx "dchbot/pkg/logx"
)

// reloadLoop applies hot-reloaded configs. Sections that cannot change at
// runtime (storage, telegram token) only produce a warning.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			next = cfg
		}
		// Coalesce bursts: keep only the latest config.
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}
		a.applyConfig(ctx, last, next)
		last = next
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, jobsChanged := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := func(s string) bool { return slices.Contains(sections, s) }

	if changed("logging") || changed("telegram") {
		a.logs.Apply(mapLogConfig(next))
	}
	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if changed("telegram") && prev.Telegram.Token != next.Telegram.Token {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}
	if changed("systemd") {
		a.log.Warn("systemd config changed; restart required for changes to take effect")
	}

	if changed("towns") {
		tc, err := mapTownsConfig(next)
		if err == nil {
			var c *towns.Client
			if c, err = towns.New(tc, a.logs.Logger()); err == nil {
				if old := a.client.swap(c); old != nil {
					old.Close()
				}
			}
		}
		if err != nil {
			a.log.Warn("invalid towns config; keeping previous client", logx.Err(err))
		}
	}

	if changed("task_engine") {
		if ec, err := mapTaskEngineConfig(next); err != nil {
			a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
		} else {
			wasEnabled := a.engine.Enabled()
			a.engine.Apply(ctx, ec)
			if ec.Enabled && !wasEnabled {
				a.engine.Start(ctx)
			}
		}
	}
	if changed("scheduler") {
		if sc, err := mapSchedulerConfig(next); err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			a.sched.Apply(sc)
		}
	}
	if len(jobsChanged) > 0 {
		if err := a.reconcileJobs(next); err != nil {
			a.log.Warn("job reconcile incomplete", logx.Err(err))
		}
		a.log.Debug("jobs changed", logx.String("jobs", strings.Join(jobsChanged, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
