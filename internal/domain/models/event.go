package models

import "time"

type EventType string

const (
	EventAlertTriggered  EventType = "alert.triggered"
	EventSignalCreated   EventType = "signal.created"
	EventMarketRefreshed EventType = "market.refreshed"
)

// Event is what the engine tells the outside world. Exactly one payload
// field is set, matching Type.
type Event struct {
	ID       string          `json:"id"`
	Type     EventType       `json:"type"`
	At       time.Time       `json:"at"`
	Alert    *Alert          `json:"alert,omitempty"`
	Price    float64         `json:"price,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
	Signal   *Signal         `json:"signal,omitempty"`
	Refresh  *RefreshSummary `json:"refresh,omitempty"`
}

// RefreshSummary describes one market refresh cycle.
type RefreshSummary struct {
	Instruments int           `json:"instruments"`
	Updated     int           `json:"updated"`
	Failed      int           `json:"failed"`
	Took        time.Duration `json:"took"`
}

// Symbol returns the instrument symbol the event concerns, if any.
func (e Event) Symbol() string {
	switch {
	case e.Alert != nil:
		return e.Alert.Instrument.Symbol
	case e.Signal != nil:
		return e.Signal.Instrument.Symbol
	}
	return ""
}
