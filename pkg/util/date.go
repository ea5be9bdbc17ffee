package util

import (
	"strconv"
	"time"
)

// IntervalDuration converts candle notation ("1m", "4h", "1d", "1w") to a duration.
func IntervalDuration(interval string) (time.Duration, bool) {
	if len(interval) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	var unit time.Duration
	switch interval[len(interval)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// AlignTo truncates t to the start of its interval bucket (UTC).
func AlignTo(t time.Time, interval string) time.Time {
	d, ok := IntervalDuration(interval)
	if !ok {
		d = time.Minute
	}
	return t.UTC().Truncate(d)
}
