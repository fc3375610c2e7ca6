package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"dchbot/internal/config"
)

func newPriceServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/prices":
			_, _ = io.WriteString(w, `[{"item":"wood","price":3}]`)
		case "/towns/7":
			_, _ = io.WriteString(w, `{"id":"7","name":"Harbor"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

// App tests stay serial: logx.NewService configures zerolog globals.

func TestAppFetchesOnStartAndRecordsRuns(t *testing.T) {
	srv, hits := newPriceServer(t)
	dir := t.TempDir()
	p := writeConfig(t, dir, fmt.Sprintf(`{
		"logging": {"level": "error"},
		"towns": {"base_url": %q, "timeout": "2s"},
		"jobs": [
			{"name": "fetch_prices", "interval": "1h"},
			{"name": "harbor", "kind": "town", "town_id": "7", "interval": "every:2h"}
		],
		"storage": {"driver": "file", "path": %q}
	}`, srv.URL, filepath.Join(dir, "runs.jsonl")))

	a, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.Scheduler().Names(); !slices.Equal(got, []string{"fetch_prices", "harbor"}) {
		t.Fatalf("jobs = %v", got)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		runs, _ := a.Store().RecentRuns(context.Background(), "harbor", 1)
		recs, ok := a.LatestPrices("fetch_prices")
		if len(runs) == 1 && ok && len(recs) == 1 {
			if !runs[0].OK {
				t.Fatalf("run = %+v", runs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("initial fetch not recorded (hits=%d)", hits.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Scheduler().Running() {
		t.Fatal("scheduler still running after Stop")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	p := writeConfig(t, t.TempDir(), `{"jobs":[{"name":"a","interval":"*/5 * * * *"}]}`)
	if _, err := New(p); err == nil {
		t.Fatal("cron interval accepted")
	}
}

func TestApplyConfigReconcilesJobs(t *testing.T) {
	srv, _ := newPriceServer(t)
	base := fmt.Sprintf(`{"logging":{"level":"error"},"towns":{"base_url":%q},"fetch_on_start":false,`, srv.URL)
	p := writeConfig(t, t.TempDir(), base+`"jobs":[{"name":"a","interval":"1h"},{"name":"b","interval":"1h"}]}`)

	a, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Stop(context.Background(), StopAppStop) })

	prev := a.cfgm.Get()
	infoB, _ := a.Scheduler().Job("b")

	next := *prev
	next.Jobs = []config.JobConfig{
		{Name: "b", Interval: "1h"},
		{Name: "c", Interval: "30m", Kind: "town", TownID: "7"},
	}
	a.applyConfig(context.Background(), prev, &next)

	if got := a.Scheduler().Names(); !slices.Equal(got, []string{"b", "c"}) {
		t.Fatalf("jobs after reload = %v", got)
	}
	if after, _ := a.Scheduler().Job("b"); !after.NextRun.Equal(infoB.NextRun) {
		t.Fatal("unchanged job was rescheduled")
	}

	changed := next
	changed.Jobs = []config.JobConfig{{Name: "b", Interval: "2h"}, {Name: "c", Interval: "30m", Kind: "town", TownID: "7"}}
	a.applyConfig(context.Background(), &next, &changed)
	if after, _ := a.Scheduler().Job("b"); after.Interval != 2*time.Hour {
		t.Fatalf("changed job interval = %v", after.Interval)
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		sc      *config.StorageConfig
		enabled bool
		busy    time.Duration
	}{
		{"omitted", nil, false, 0},
		{"none", &config.StorageConfig{Driver: "none"}, false, 0},
		{"sqlite default busy", &config.StorageConfig{Driver: "SQLite", Path: "x.db"}, true, time.Second},
		{"sqlite busy", &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "3s"}, true, 3 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, enabled, err := mapStorageConfig(&config.Config{Storage: tc.sc})
			if err != nil || enabled != tc.enabled {
				t.Fatalf("enabled=%v err=%v", enabled, err)
			}
			if enabled && got.BusyTimeout != tc.busy {
				t.Fatalf("busy = %v, want %v", got.BusyTimeout, tc.busy)
			}
		})
	}
}
