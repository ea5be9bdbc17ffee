package models

import "time"

// Notification is the payload handed to the gateway for one transition.
type Notification struct {
	Instrument   Instrument
	Kind         AlertKind
	TargetPrice  float64
	CurrentPrice float64
	Message      string
	Degraded     bool
	GeneratedAt  time.Time
}

// NotificationFor builds the payload for a triggered alert.
func NotificationFor(a Alert, price float64, degraded bool, at time.Time) Notification {
	return Notification{
		Instrument:   a.Instrument,
		Kind:         a.Kind,
		TargetPrice:  a.TargetPrice,
		CurrentPrice: price,
		Message:      a.Message,
		Degraded:     degraded,
		GeneratedAt:  at,
	}
}
