package metrics

import (
	"errors"

	domrepo "MarketPulse/internal/domain/repository"
)

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordCacheRead(string)                        {}
func (Nop) RecordUpstream(string, string, float64, error) {}
func (Nop) RecordRefresh(int, int, float64)               {}
func (Nop) RecordRefreshDropped()                         {}
func (Nop) RecordAlertCycle(int, int, int, int, float64)  {}
func (Nop) RecordAlertOutcome(string)                     {}
func (Nop) RecordDispatch(bool)                           {}
func (Nop) RecordSignal(string)                           {}
func (Nop) RecordEvent(string, string)                    {}
func (Nop) RecordError(string)                            {}
func (Nop) RecordLatency(string, float64)                 {}

// ErrorKind maps an error to a low-cardinality label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domrepo.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domrepo.ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, domrepo.ErrStoreConflict):
		return "conflict"
	case errors.Is(err, domrepo.ErrUpstreamUnavailable):
		return "network"
	}
	return "other"
}

var (
	_ domrepo.Metrics = (*Recorder)(nil)
	_ domrepo.Metrics = Nop{}
)
