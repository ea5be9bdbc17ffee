package models

import (
	"fmt"
	"time"
)

type AlertKind string

const (
	AlertAbove  AlertKind = "above"
	AlertBelow  AlertKind = "below"
	AlertCross  AlertKind = "cross"
	AlertManual AlertKind = "manual"
)

func (k AlertKind) Valid() bool {
	switch k {
	case AlertAbove, AlertBelow, AlertCross, AlertManual:
		return true
	}
	return false
}

type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertTriggered AlertStatus = "triggered"
	AlertCancelled AlertStatus = "cancelled"
)

// Terminal statuses are never evaluated again.
func (s AlertStatus) Terminal() bool {
	return s == AlertTriggered || s == AlertCancelled
}

// Alert is a user-defined price condition. TriggeredAt is non-nil iff
// Status is AlertTriggered.
type Alert struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner"`
	Instrument  Instrument  `json:"instrument"`
	Kind        AlertKind   `json:"kind"`
	TargetPrice float64     `json:"target_price"`
	Message     string      `json:"message,omitempty"`
	Status      AlertStatus `json:"status"`
	Notify      bool        `json:"notify"`
	Destination string      `json:"destination,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	TriggeredAt *time.Time  `json:"triggered_at,omitempty"`
}

// Validate checks the invariants a stored alert must satisfy.
func (a Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("alert: missing id")
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("alert %s: unknown kind %q", a.ID, a.Kind)
	}
	if !a.Instrument.Segment.Valid() || a.Instrument.Symbol == "" {
		return fmt.Errorf("alert %s: bad instrument %+v", a.ID, a.Instrument)
	}
	if (a.Status == AlertTriggered) != (a.TriggeredAt != nil) {
		return fmt.Errorf("alert %s: triggered_at must be set iff status is triggered", a.ID)
	}
	return nil
}

// ShouldNotify reports whether a transition should be forwarded to the gateway.
func (a Alert) ShouldNotify() bool {
	return a.Notify && a.Destination != ""
}
