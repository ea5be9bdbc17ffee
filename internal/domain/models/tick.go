package models

import "time"

// MarketTick is the live view of one instrument.
type MarketTick struct {
	Instrument Instrument `json:"instrument"`
	Price      float64    `json:"price"`
	Change24h  float64    `json:"change_24h"`
	Volume     float64    `json:"volume"`
	LastUpdate time.Time  `json:"last_update"`
	Degraded   bool       `json:"degraded,omitempty"`
}
