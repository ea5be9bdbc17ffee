package models

import "time"

// Snapshot is one OHLC(+volume) bucket.
type Snapshot struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume *float64  `json:"volume,omitempty"`
}

// VolumeOrZero hides the optional volume for arithmetic.
func (s Snapshot) VolumeOrZero() float64 {
	if s.Volume == nil {
		return 0
	}
	return *s.Volume
}

// Series is ordered oldest first.
type Series []Snapshot

// Latest returns the newest snapshot.
func (s Series) Latest() (Snapshot, bool) {
	if len(s) == 0 {
		return Snapshot{}, false
	}
	return s[len(s)-1], true
}

// CacheEntry is a cached series and when it was fetched upstream.
type CacheEntry struct {
	Key       string    `json:"key"`
	Series    Series    `json:"series"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FreshAt reports whether the entry is still inside its TTL at t.
func (e CacheEntry) FreshAt(t time.Time) bool {
	return t.Before(e.ExpiresAt)
}
