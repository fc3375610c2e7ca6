package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseInterval parses a fixed repetition interval.
//
// Supported forms:
//   - Go duration: "55m", "2h30m", "90s"
//   - HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// An optional "interval:" or "every:" prefix is accepted. Cron expressions
// ("*/5 * * * *", "@hourly", "cron:...") are rejected.
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: interval required", ErrInvalidConfiguration)
	}

	low := strings.ToLower(s)
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			s = strings.TrimSpace(s[len(p):])
			low = strings.ToLower(s)
			break
		}
	}
	if s == "" {
		return 0, fmt.Errorf("%w: interval required after prefix in %q", ErrInvalidConfiguration, raw)
	}
	if strings.HasPrefix(low, "cron:") || strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t\n\r") {
		return 0, fmt.Errorf("%w: cron schedules are not supported (%q); use a duration like '55m' or HH:MM", ErrInvalidConfiguration, raw)
	}

	var d time.Duration
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("%w: invalid minutes in %q", ErrInvalidConfiguration, raw)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", ErrInvalidConfiguration, raw)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: interval must be > 0, got %q", ErrInvalidConfiguration, raw)
	}
	return d, nil
}
