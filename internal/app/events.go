package app

import (
	"context"
	"time"

	"dchbot/internal/eventbus"
	"dchbot/internal/storage"
	"dchbot/internal/task/scheduler"
	logx "dchbot/pkg/logx"
)

const storeWriteTimeout = 2 * time.Second

// consumeEvents logs bus traffic at debug level and persists finished runs.
func (a *App) consumeEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			if e.Type != eventbus.JobFinished && e.Type != eventbus.JobFailed {
				continue
			}
			ev, ok := e.Data.(scheduler.JobEvent)
			if !ok || a.store == nil {
				continue
			}
			a.appendRun(ctx, ev, e.Type == eventbus.JobFinished)
		}
	}
}

func (a *App) appendRun(ctx context.Context, ev scheduler.JobEvent, ok bool) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()
	err := a.store.AppendRun(wctx, storage.RunEntry{
		At:       ev.Started,
		Job:      ev.Job,
		OK:       ok,
		Error:    ev.Error,
		TookMS:   ev.Duration.Milliseconds(),
		Failures: ev.Failures,
	})
	if err != nil {
		a.log.Warn("run history write failed", logx.String("job", ev.Job), logx.Err(err))
	}
}
