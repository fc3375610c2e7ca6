package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"dchbot/internal/config"
	"dchbot/internal/task/scheduler"
	"dchbot/internal/towns"
	logx "dchbot/pkg/logx"
)

// clientRef lets jobs survive a towns client swap on config reload.
type clientRef struct {
	p atomic.Pointer[towns.Client]
}

func (r *clientRef) swap(c *towns.Client) *towns.Client { return r.p.Swap(c) }

var errNoClient = errors.New("towns client closed")

func (r *clientRef) GetPrices(ctx context.Context, townID string) ([]towns.Record, error) {
	c := r.p.Load()
	if c == nil {
		return nil, errNoClient
	}
	return c.GetPrices(ctx, townID)
}

func (r *clientRef) GetTownData(ctx context.Context, townID string) (towns.Record, error) {
	c := r.p.Load()
	if c == nil {
		return nil, errNoClient
	}
	return c.GetTownData(ctx, townID)
}

// latest keeps the last successful payload per job, for status output.
type latest struct {
	mu     sync.Mutex
	prices map[string][]towns.Record
	towns  map[string]towns.Record
}

func (l *latest) setPrices(job string, recs []towns.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.prices == nil {
		l.prices = map[string][]towns.Record{}
	}
	l.prices[job] = recs
}

func (l *latest) setTown(job string, rec towns.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.towns == nil {
		l.towns = map[string]towns.Record{}
	}
	l.towns[job] = rec
}

// LatestPrices returns the records of the last successful run of a price job.
func (a *App) LatestPrices(job string) ([]towns.Record, bool) {
	a.latest.mu.Lock()
	defer a.latest.mu.Unlock()
	recs, ok := a.latest.prices[job]
	return recs, ok
}

// buildAction turns a job config into a scheduler action plus its options.
func (a *App) buildAction(jc config.JobConfig) (scheduler.Action, []scheduler.JobOption, error) {
	var opts []scheduler.JobOption
	path := "jobs." + jc.Name
	timeout, err := config.ParseDurationField(path+".timeout", jc.Timeout)
	if err != nil {
		return nil, nil, err
	}
	if timeout > 0 {
		opts = append(opts, scheduler.WithTimeout(timeout))
	}
	backoff, err := config.ParseDurationField(path+".failure_backoff_max", jc.FailureBackoffMax)
	if err != nil {
		return nil, nil, err
	}
	if backoff > 0 {
		opts = append(opts, scheduler.WithFailureBackoff(backoff))
	}

	log := a.log.With(logx.String("job", jc.Name))
	name := jc.Name
	switch jc.Kind {
	case config.JobKindPrices, "":
		f := &towns.PriceFetcher{Client: a.client, TownID: strings.TrimSpace(jc.TownID), Log: log}
		return scheduler.Produce(f.Fetch, func(recs []towns.Record) { a.latest.setPrices(name, recs) }), opts, nil
	case config.JobKindTown:
		f := &towns.TownFetcher{Client: a.client, TownID: strings.TrimSpace(jc.TownID), Log: log}
		return scheduler.Produce(f.Fetch, func(rec towns.Record) { a.latest.setTown(name, rec) }), opts, nil
	default:
		return nil, nil, fmt.Errorf("%s.kind: unknown kind %q", path, jc.Kind)
	}
}

// reconcileJobs makes the scheduler's job set match cfg. Unchanged jobs keep
// their schedule; changed jobs are replaced and start a fresh interval.
func (a *App) reconcileJobs(cfg *config.Config) error {
	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()

	want := map[string]config.JobConfig{}
	for _, jc := range cfg.EffectiveJobs() {
		want[jc.Name] = jc
	}

	var errs []error
	for name, prev := range a.jobs {
		if jc, ok := want[name]; ok && jc == prev {
			continue
		}
		if err := a.sched.RemoveJob(name); err != nil && !errors.Is(err, scheduler.ErrJobNotFound) {
			errs = append(errs, err)
			continue
		}
		delete(a.jobs, name)
		a.log.Info("job removed", logx.String("job", name))
	}

	for _, jc := range cfg.EffectiveJobs() {
		if _, ok := a.jobs[jc.Name]; ok {
			continue
		}
		interval, err := config.ParseIntervalField("jobs."+jc.Name+".interval", jc.Interval)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		action, opts, err := a.buildAction(jc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.sched.AddJob(jc.Name, interval, action, opts...); err != nil {
			errs = append(errs, err)
			continue
		}
		a.jobs[jc.Name] = jc
		a.log.Info("job registered",
			logx.String("job", jc.Name),
			logx.String("kind", jc.Kind),
			logx.Duration("interval", interval),
		)
	}
	return errors.Join(errs...)
}

// fetchNow marks every registered job due immediately.
func (a *App) fetchNow() {
	for _, name := range a.sched.Names() {
		if err := a.sched.RunNow(name); err != nil {
			a.log.Debug("initial fetch not queued", logx.String("job", name), logx.Err(err))
		}
	}
}
