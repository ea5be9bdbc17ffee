package features

import (
	"math"

	"MarketPulse/internal/domain/models"
)

// Stats summarises a series the way the market view shows it.
type Stats struct {
	Last       float64 `json:"last"`
	ChangePct  float64 `json:"change_pct"`
	Volume     float64 `json:"volume"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Volatility float64 `json:"volatility"`
}

// Summarize computes Stats over the whole series. ok is false for an empty
// series.
func Summarize(s models.Series, interval models.Interval) (Stats, bool) {
	last, ok := s.Latest()
	if !ok {
		return Stats{}, false
	}

	st := Stats{
		Last:      last.Close,
		ChangePct: ChangePct(s),
		Volume:    TotalVolume(s),
		High:      s[0].High,
		Low:       s[0].Low,
	}
	for _, c := range s[1:] {
		st.High = math.Max(st.High, c.High)
		st.Low = math.Min(st.Low, c.Low)
	}
	rets := LogReturns(s)
	st.Volatility = RealizedVolatility(rets, len(rets), BarsPerYear(interval))
	return st, true
}

// ChangePct is the percent move from the first open to the last close.
func ChangePct(s models.Series) float64 {
	if len(s) == 0 || s[0].Open <= 0 {
		return 0
	}
	return (s[len(s)-1].Close - s[0].Open) / s[0].Open * 100
}

// TotalVolume sums candle volumes; candles without volume count as zero.
func TotalVolume(s models.Series) float64 {
	var v float64
	for _, c := range s {
		v += c.VolumeOrZero()
	}
	return v
}

// LogReturns computes r_t = ln(C_t / C_{t-1}); non-positive prices yield 0.
func LogReturns(s models.Series) []float64 {
	if len(s) < 2 {
		return nil
	}
	out := make([]float64, 0, len(s)-1)
	for i := 1; i < len(s); i++ {
		prev, cur := s[i-1].Close, s[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample deviation of the last window
// returns.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for _, r := range logReturns[len(logReturns)-window:] {
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYear returns the approximate number of candles per year.
func BarsPerYear(interval models.Interval) float64 {
	switch interval {
	case "1m":
		return 365 * 24 * 60
	case "3m":
		return 365 * 24 * 20
	case "5m":
		return 365 * 24 * 12
	case "15m":
		return 365 * 24 * 4
	case "30m":
		return 365 * 24 * 2
	case "2h":
		return 365 * 12
	case "4h":
		return 365 * 6
	case "6h":
		return 365 * 4
	case "12h":
		return 365 * 2
	case "1d":
		return 365
	case "1w":
		return 52
	default:
		return 365 * 24
	}
}
