package service

import (
	"testing"

	"MarketPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestEvaluator_ShouldTrigger(t *testing.T) {
	t.Parallel()

	ev := NewEvaluator(0)
	tests := []struct {
		name  string
		kind  models.AlertKind
		price float64
		want  bool
	}{
		{"above below target", models.AlertAbove, 49999.99, false},
		{"above at target", models.AlertAbove, 50000, true},
		{"above over target", models.AlertAbove, 50500, true},
		{"below over target", models.AlertBelow, 50000.01, false},
		{"below at target", models.AlertBelow, 50000, true},
		{"below under target", models.AlertBelow, 49000, true},
		{"cross exact", models.AlertCross, 50000, true},
		{"cross within epsilon", models.AlertCross, 50000.009, true},
		{"cross outside epsilon", models.AlertCross, 50000.02, false},
		{"cross far", models.AlertCross, 49000, false},
		{"manual never", models.AlertManual, 50000, false},
		{"unknown never", models.AlertKind("trailing"), 50000, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := models.Alert{Kind: tt.kind, TargetPrice: 50000}
			assert.Equal(t, tt.want, ev.ShouldTrigger(a, tt.price))
		})
	}
}

func TestEvaluator_Monotonic(t *testing.T) {
	t.Parallel()

	ev := NewEvaluator(0.01)
	above := models.Alert{Kind: models.AlertAbove, TargetPrice: 100}
	below := models.Alert{Kind: models.AlertBelow, TargetPrice: 100}

	prices := []float64{0, 1, 50, 99.99, 100, 100.01, 150, 1e6}
	for i, p := range prices {
		for _, q := range prices[i:] {
			if ev.ShouldTrigger(above, p) {
				assert.True(t, ev.ShouldTrigger(above, q), "above fired at %v but not %v", p, q)
			}
			if ev.ShouldTrigger(below, q) {
				assert.True(t, ev.ShouldTrigger(below, p), "below fired at %v but not %v", q, p)
			}
		}
	}
}

func TestEvaluator_Deterministic(t *testing.T) {
	t.Parallel()

	ev := NewEvaluator(0.01)
	a := models.Alert{Kind: models.AlertCross, TargetPrice: 1.2345}
	first := ev.ShouldTrigger(a, 1.24)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ev.ShouldTrigger(a, 1.24))
	}
}
