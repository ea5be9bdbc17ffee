package features

import (
	"math"
	"testing"

	"MarketPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vol(v float64) *float64 { return &v }

func TestSummarize(t *testing.T) {
	s := models.Series{
		{Open: 100, High: 105, Low: 99, Close: 104, Volume: vol(10)},
		{Open: 104, High: 108, Low: 101, Close: 102},
		{Open: 102, High: 111, Low: 100, Close: 110, Volume: vol(5)},
	}

	st, ok := Summarize(s, "1h")
	require.True(t, ok)
	assert.Equal(t, 110.0, st.Last)
	assert.InDelta(t, 10.0, st.ChangePct, 1e-9)
	assert.Equal(t, 15.0, st.Volume)
	assert.Equal(t, 111.0, st.High)
	assert.Equal(t, 99.0, st.Low)
	assert.Greater(t, st.Volatility, 0.0)
}

func TestSummarizeEmpty(t *testing.T) {
	_, ok := Summarize(nil, "1h")
	assert.False(t, ok)
	assert.Equal(t, 0.0, ChangePct(nil))
}

func TestLogReturns(t *testing.T) {
	s := models.Series{{Close: 100}, {Close: 110}, {Close: 0}, {Close: 50}}
	r := LogReturns(s)
	require.Len(t, r, 3)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
	assert.Equal(t, 0.0, r[1])
	assert.Equal(t, 0.0, r[2])
}

func TestRealizedVolatilityFlat(t *testing.T) {
	assert.Equal(t, 0.0, RealizedVolatility([]float64{0, 0, 0}, 3, 365))
	assert.Equal(t, 0.0, RealizedVolatility([]float64{0.1}, 3, 365))
}
