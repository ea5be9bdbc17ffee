package service

import (
	"math"

	"MarketPulse/internal/domain/models"
)

// DefaultCrossEpsilon is how close the price must be to the target for a
// cross alert to fire.
const DefaultCrossEpsilon = 0.01

// Evaluator decides whether an alert's condition holds at a price. It has
// no state and no side effects.
type Evaluator struct {
	CrossEpsilon float64
}

func NewEvaluator(crossEpsilon float64) Evaluator {
	if crossEpsilon <= 0 {
		crossEpsilon = DefaultCrossEpsilon
	}
	return Evaluator{CrossEpsilon: crossEpsilon}
}

// ShouldTrigger reports whether a fires at price. Manual alerts never fire
// here; they are triggered explicitly.
func (e Evaluator) ShouldTrigger(a models.Alert, price float64) bool {
	switch a.Kind {
	case models.AlertAbove:
		return price >= a.TargetPrice
	case models.AlertBelow:
		return price <= a.TargetPrice
	case models.AlertCross:
		return math.Abs(price-a.TargetPrice) < e.CrossEpsilon
	default:
		return false
	}
}
