package feed

import (
	"strings"

	"MarketPulse/internal/domain/models"
)

// VenueSymbol translates an instrument to the ticker an upstream expects.
// Pairs lose their separator (BTC/USDT -> BTCUSDT); equities and
// commodities are qualified by venue (RELIANCE -> RELIANCE.NSE).
func VenueSymbol(inst models.Instrument) string {
	sym := strings.ToUpper(strings.TrimSpace(inst.Symbol))
	switch inst.Segment {
	case models.SegmentCrypto, models.SegmentForex:
		return strings.ReplaceAll(sym, "/", "")
	case models.SegmentEquity, models.SegmentCommodity:
		if inst.Venue != "" {
			return sym + "." + strings.ToUpper(inst.Venue)
		}
	}
	return sym
}
