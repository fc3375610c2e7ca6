package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dchbot/internal/config"
	"dchbot/internal/eventbus"
	rtsup "dchbot/internal/runtime/supervisor"
	"dchbot/internal/storage"
	"dchbot/internal/task/engine"
	"dchbot/internal/task/scheduler"
	"dchbot/internal/towns"
	"dchbot/internal/transport/telegram"
	logx "dchbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	client *clientRef
	engine *engine.Service
	sched  *scheduler.Service

	jobsMu sync.Mutex
	jobs   map[string]config.JobConfig // as registered

	latest latest

	fetchOnStart bool
	notify       bool
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	var sender logx.TextSender
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		s, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = s
	}
	logSvc, root := logx.NewService(mapLogConfig(cfg), sender)
	log := root.With(logx.String("comp", "app"))

	a := &App{
		cfgm:         cfgm,
		log:          log,
		logs:         logSvc,
		bus:          eventbus.New(),
		client:       &clientRef{},
		jobs:         map[string]config.JobConfig{},
		fetchOnStart: cfg.FetchOnStartEnabled(),
		notify:       cfg.Systemd.Notify,
	}
	if err := a.build(cfg, root); err != nil {
		_ = a.close()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	tc, err := mapTownsConfig(cfg)
	if err != nil {
		return err
	}
	client, err := towns.New(tc, root)
	if err != nil {
		return err
	}
	a.client.swap(client)

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, root)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return err
	}
	a.engine = engine.New(engCfg, root, a.bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	a.sched = scheduler.New(schedCfg, root, a.bus, scheduler.WithExecutor(a.engine))

	return a.reconcileJobs(cfg)
}

// Scheduler exposes the scheduler for status and manual triggers.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Store returns the run history store, or nil when storage is disabled.
func (a *App) Store() storage.Store { return a.store }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log)
	c := a.sup.Context()

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("eventbus.consume", func(c context.Context) {
		defer unsub()
		a.consumeEvents(c, events)
	})

	if a.engine.Enabled() {
		a.engine.Start(c)
	}
	a.sched.Start(c)
	if a.fetchOnStart {
		a.log.Info("fetching initial data")
		a.fetchNow()
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", a.watchdog)

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("jobs", len(a.sched.Names())))
	return nil
}

// Stop shuts components down in dependency order. Each step is bounded so one
// component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// The scheduler goes first so nothing new reaches the engine.
	step("scheduler", 5*time.Second, a.sched.Stop)
	step("taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })

	a.sup.Cancel()
	step("supervisor", 2*time.Second, a.sup.Wait)

	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// close releases resources that don't need an orderly stop.
func (a *App) close() error {
	if c := a.client.swap(nil); c != nil {
		c.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	return nil
}
