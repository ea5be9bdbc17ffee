package models

import "strings"

// Interval is a candle bucket width in upstream notation.
type Interval string

var validIntervals = map[Interval]struct{}{
	"1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "12h": {},
	"1d": {}, "1w": {},
}

func DefaultInterval() Interval { return "1h" }

func (i Interval) Valid() bool {
	_, ok := validIntervals[i]
	return ok
}

// NormalizeInterval maps raw input to a supported interval, or the default.
func NormalizeInterval(s string) Interval {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if iv.Valid() {
		return iv
	}
	return DefaultInterval()
}
