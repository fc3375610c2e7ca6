package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func noop(context.Context) error { return nil }

func TestNewJobValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		jobName  string
		interval time.Duration
		action   Action
	}{
		{"zero interval", "a", 0, ActionFunc(noop)},
		{"negative interval", "a", -time.Second, ActionFunc(noop)},
		{"below minimum", "a", 500 * time.Millisecond, ActionFunc(noop)},
		{"empty name", "  ", time.Second, ActionFunc(noop)},
		{"nil action", "a", time.Second, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			j, err := NewJob(tc.jobName, tc.interval, tc.action, epoch)
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
			}
			if j != nil {
				t.Fatal("job returned alongside error")
			}
		})
	}
}

func TestJobDueAndRecord(t *testing.T) {
	t.Parallel()
	j, err := NewJob("fetch_prices", 5*time.Second, ActionFunc(noop), epoch)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if got := j.NextRun(); !got.Equal(epoch.Add(5 * time.Second)) {
		t.Fatalf("NextRun = %v", got)
	}
	if j.Due(epoch.Add(4 * time.Second)) {
		t.Fatal("due before next run")
	}
	if !j.Due(epoch.Add(5 * time.Second)) {
		t.Fatal("not due at next run")
	}

	at := epoch.Add(6 * time.Second)
	j.RecordFailure(at, errors.New("timeout"))
	j.RecordFailure(at.Add(5*time.Second), errors.New("timeout"))
	if j.FailureCount() != 2 || j.LastError() != "timeout" {
		t.Fatalf("failures=%d lastErr=%q", j.FailureCount(), j.LastError())
	}
	if got := j.NextRun(); !got.Equal(at.Add(10 * time.Second)) {
		t.Fatalf("NextRun after failure = %v, want fixed interval", got)
	}

	done := at.Add(20 * time.Second)
	j.RecordSuccess(done)
	if j.FailureCount() != 0 || j.LastError() != "" {
		t.Fatalf("success did not reset streak: failures=%d lastErr=%q", j.FailureCount(), j.LastError())
	}
	if !j.NextRun().Equal(done.Add(5*time.Second)) || j.Runs() != 3 {
		t.Fatalf("NextRun=%v Runs=%d", j.NextRun(), j.Runs())
	}
}

func TestJobFailureBackoff(t *testing.T) {
	t.Parallel()
	j, err := NewJob("a", 10*time.Second, ActionFunc(noop), epoch, WithFailureBackoff(35*time.Second))
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second, 35 * time.Second, 35 * time.Second}
	for i, w := range want {
		j.RecordFailure(epoch, errors.New("x"))
		if got := j.NextRun().Sub(epoch); got != w {
			t.Fatalf("failure %d: delay = %s, want %s", i+1, got, w)
		}
	}
	j.RecordSuccess(epoch)
	if got := j.NextRun().Sub(epoch); got != 10*time.Second {
		t.Fatalf("delay after success = %s", got)
	}
}

func TestProduceAdapter(t *testing.T) {
	t.Parallel()
	var got []string
	a := Produce(func(context.Context) ([]string, error) {
		return []string{"x", "y"}, nil
	}, func(v []string) { got = v })
	if err := a.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("onResult got %v", got)
	}

	boom := errors.New("boom")
	called := false
	b := Produce(func(context.Context) (int, error) { return 0, boom }, func(int) { called = true })
	if err := b.Execute(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Fatal("onResult called on failure")
	}
}

func TestParseInterval(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"55m", 55 * time.Minute, false},
		{" 2h30m ", 150 * time.Minute, false},
		{"00:50", 50 * time.Minute, false},
		{"02:30", 150 * time.Minute, false},
		{"interval:90s", 90 * time.Second, false},
		{"EVERY: 01:00", time.Hour, false},
		{"", 0, true},
		{"every:", 0, true},
		{"0s", 0, true},
		{"-5m", 0, true},
		{"00:00", 0, true},
		{"01:75", 0, true},
		{"*/5 * * * *", 0, true},
		{"@hourly", 0, true},
		{"cron:0 * * * *", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseInterval(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("ParseInterval(%q) err = %v, want ErrInvalidConfiguration", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseInterval(%q) = %s, %v; want %s", tc.in, got, err, tc.want)
		}
	}
}
