package config

import (
	"fmt"
	"strings"
	"time"

	"dchbot/internal/task/scheduler"
)

// ParseDurationField parses an optional, non-negative duration. Empty means 0.
// Errors carry the config path of the field.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", path, d)
	}
	return d, nil
}

// DurationOr is ParseDurationField with def in place of an empty or zero value.
func DurationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// ParseIntervalField parses a job interval ("5m", "00:05", "every:1h") and
// enforces scheduler.MinInterval. Errors wrap scheduler.ErrInvalidConfiguration.
func ParseIntervalField(path, raw string) (time.Duration, error) {
	d, err := scheduler.ParseInterval(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if d < scheduler.MinInterval {
		return 0, fmt.Errorf("%s: %w: must be at least %s", path, scheduler.ErrInvalidConfiguration, scheduler.MinInterval)
	}
	return d, nil
}
