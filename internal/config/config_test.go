package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"dchbot/internal/task/scheduler"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

const sampleYAML = `
logging:
  level: debug
  console: true
telegram:
  token: "123:abc"
  chat_id: -100200
scheduler:
  poll_interval: 2s
  dispatch: pool
task_engine:
  workers: 3
towns:
  base_url: https://towns.example
  rate_per_sec: 2.5
jobs:
  - name: fetch_prices
    interval: "00:50"
  - name: capital
    kind: town
    town_id: "42"
    interval: every:1h
fetch_on_start: false
storage:
  driver: sqlite
  path: ./runs.db
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)

	m := NewConfigManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
	if cfg.Telegram.ChatID != -100200 || cfg.Towns.RatePerSec != 2.5 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.TaskEngineEnabled() {
		t.Fatal("pool dispatch should enable the task engine")
	}
	if cfg.FetchOnStartEnabled() {
		t.Fatal("fetch_on_start: false ignored")
	}
	jobs := cfg.EffectiveJobs()
	if len(jobs) != 2 || jobs[0].Kind != JobKindPrices || jobs[1].Kind != JobKindTown {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestLoadJSONDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"logging":{"level":"info"}}`)

	cfg, err := NewConfigManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	jobs := cfg.EffectiveJobs()
	if len(jobs) != 1 || jobs[0].Name != DefaultJobName || jobs[0].Interval != "5m" {
		t.Fatalf("default jobs = %+v", jobs)
	}
	if !cfg.FetchOnStartEnabled() || cfg.TaskEngineEnabled() {
		t.Fatal("unexpected defaults")
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body, want string
	}{
		{"unknown field", "c.json", `{"nope":1}`, "unknown field"},
		{"trailing data", "c.json", `{}{}`, "trailing data"},
		{"bad yaml", "c.yaml", "a: [", "yaml:"},
		{"unknown yaml field", "c.yml", "scheduler:\n  cron: '* * * * *'\n", "unknown field"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, t.TempDir(), tc.file, tc.body)
			_, err := NewConfigManager(p).Parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	f := false
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"ok default", Config{}, ""},
		{"duplicate job", Config{Jobs: []JobConfig{{Name: "a", Interval: "1m"}, {Name: " a ", Interval: "2m"}}}, "duplicate job name"},
		{"missing name", Config{Jobs: []JobConfig{{Interval: "1m"}}}, "name: required"},
		{"cron rejected", Config{Jobs: []JobConfig{{Name: "a", Interval: "cron:*/5 * * * *"}}}, "interval"},
		{"zero interval", Config{Jobs: []JobConfig{{Name: "a", Interval: "0s"}}}, "interval"},
		{"below minimum", Config{Jobs: []JobConfig{{Name: "a", Interval: "500ms"}}}, "at least"},
		{"town without id", Config{Jobs: []JobConfig{{Name: "a", Kind: "town", Interval: "1m"}}}, "town_id"},
		{"unknown kind", Config{Jobs: []JobConfig{{Name: "a", Kind: "weather", Interval: "1m"}}}, "unknown kind"},
		{"bad dispatch", Config{Scheduler: SchedulerConfig{Dispatch: "threads"}}, "scheduler.dispatch"},
		{"pool without engine", Config{Scheduler: SchedulerConfig{Dispatch: "pool"}, TaskEngine: &TaskEngineConfig{Enabled: &f}}, "task_engine.enabled"},
		{"bad duration", Config{Scheduler: SchedulerConfig{PollInterval: "soon"}}, "poll_interval"},
		{"bad url", Config{Towns: TownsConfig{BaseURL: "ftp://x"}}, "towns.base_url"},
		{"storage path", Config{Storage: &StorageConfig{Driver: "file"}}, "storage.path"},
		{"storage driver", Config{Storage: &StorageConfig{Driver: "redis"}}, "storage.driver"},
		{"alerts need chat", Config{Logging: LoggingConfig{Telegram: LoggingTelegram{Enabled: true}}}, "logging.telegram"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&tc.cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestValidateWrapsIntervalSentinel(t *testing.T) {
	t.Parallel()
	err := Validate(&Config{Jobs: []JobConfig{{Name: "a", Interval: "-1m"}}})
	if !errors.Is(err, scheduler.ErrInvalidConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestFieldParsers(t *testing.T) {
	t.Parallel()

	if d, err := ParseIntervalField("jobs.a.interval", "every:00:05"); err != nil || d != 5*time.Minute {
		t.Fatalf("interval = %s, %v; want 5m", d, err)
	}
	_, err := ParseIntervalField("jobs.a.interval", "500ms")
	if !errors.Is(err, scheduler.ErrInvalidConfiguration) || !strings.Contains(err.Error(), "jobs.a.interval") {
		t.Fatalf("below minimum: err = %v", err)
	}

	if d, err := DurationOr("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("empty: %s, %v", d, err)
	}
	if d, err := DurationOr("x", "3s", time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("set: %s, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
}

func TestDecodeYAMLNonStringKeys(t *testing.T) {
	t.Parallel()
	// Unknown keys still fail after conversion, whatever their YAML type.
	_, err := decode("c.yaml", []byte("1: x\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("err = %v", err)
	}
	cfg, err := decode("c.yaml", nil)
	if err != nil || cfg == nil {
		t.Fatalf("empty yaml: %v, %v", cfg, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Telegram: TelegramConfig{Token: "secret-1"},
		Jobs:     []JobConfig{{Name: "a", Interval: "1m"}, {Name: "b", Interval: "1m"}},
	}
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "secret-2"},
		Jobs:     []JobConfig{{Name: "a", Interval: "2m"}, {Name: "c", Interval: "1m"}},
		Systemd:  SystemdConfig{Notify: true},
	}

	changed, attrs, jobs := SummarizeConfigChange(oldCfg, newCfg)
	if want := []string{"jobs", "systemd", "telegram"}; !slices.Equal(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if want := []string{"a", "b", "c"}; !slices.Equal(jobs, want) {
		t.Fatalf("jobs = %v, want %v", jobs, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}

	if changed, _, _ := SummarizeConfigChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestSubscribeDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatal("slow subscriber should receive the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}

func TestWatchPublishesValidReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"jobs":[{"name":"a","interval":"1m"}]}`)

	m := NewConfigManager(p)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Invalid content is rejected and never published.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	writeFile(t, dir, "config.json", `{"jobs":[{"name":"a","interval":"0s"}]}`)
	valid := `{"jobs":[{"name":"a","interval":"2m"}]}`
	for {
		select {
		case cfg := <-ch:
			if got := cfg.EffectiveJobs()[0].Interval; got != "2m" {
				t.Fatalf("published interval %q", got)
			}
			if m.Get() != cfg {
				t.Fatal("published config not committed")
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep rewriting.
			writeFile(t, dir, "config.json", valid)
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}
