package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a YAML duration string such as "30s" or "5m".
// Empty strings parse to zero so callers can tell "unset" apart from an
// explicit "0s". Negative durations are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with unset or zero values
// replaced by def. Fields where zero is meaningful, like sweep_interval,
// use ParseDurationField directly.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
