package models

import (
	"fmt"
	"strings"
)

// Segment is the market an instrument trades in.
type Segment string

const (
	SegmentCrypto    Segment = "crypto"
	SegmentForex     Segment = "forex"
	SegmentEquity    Segment = "equity"
	SegmentCommodity Segment = "commodity"
)

func (s Segment) Valid() bool {
	switch s {
	case SegmentCrypto, SegmentForex, SegmentEquity, SegmentCommodity:
		return true
	}
	return false
}

// ParseSegment accepts the canonical names plus the "stock" alias.
func ParseSegment(s string) (Segment, error) {
	switch seg := Segment(strings.ToLower(strings.TrimSpace(s))); seg {
	case "stock":
		return SegmentEquity, nil
	case "":
		return SegmentCrypto, nil
	default:
		if seg.Valid() {
			return seg, nil
		}
		return "", fmt.Errorf("unknown market segment %q", s)
	}
}

// Instrument identifies a tradable symbol. Values are immutable once built.
type Instrument struct {
	Symbol  string  `json:"symbol"`
	Segment Segment `json:"segment"`
	Venue   string  `json:"venue,omitempty"`
}

func NewInstrument(symbol string, segment Segment, venue string) Instrument {
	return Instrument{
		Symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		Segment: segment,
		Venue:   strings.ToUpper(strings.TrimSpace(venue)),
	}
}

// CacheKey is segment:venue:symbol, with "default" standing in for an empty venue.
func (i Instrument) CacheKey() string {
	venue := i.Venue
	if venue == "" {
		venue = "default"
	}
	return fmt.Sprintf("%s:%s:%s", i.Segment, venue, i.Symbol)
}

// Base returns the left side of a BASE/QUOTE pair, or the whole symbol.
func (i Instrument) Base() string {
	if idx := strings.IndexByte(i.Symbol, '/'); idx > 0 {
		return i.Symbol[:idx]
	}
	return i.Symbol
}

func (i Instrument) String() string {
	if i.Venue != "" {
		return i.Symbol + "." + i.Venue
	}
	return i.Symbol
}

// CryptoBases is the simulated universe, quoted in USDT.
var CryptoBases = []string{
	"BTC", "ETH", "BNB", "XRP", "ADA", "DOGE", "SOL", "DOT", "MATIC", "LTC",
	"AVAX", "LINK", "UNI", "ATOM", "XLM", "ALGO", "VET", "FIL", "TRX", "ETC",
	"NEAR", "AAVE", "SAND", "MANA", "AXS", "FTM", "HBAR", "EGLD", "XTZ", "THETA",
	"ICP", "EOS", "FLOW", "APE", "CHZ", "CAKE", "GRT", "ENJ", "QNT", "KSM",
	"ZEC", "RUNE", "MKR", "SNX", "COMP", "CRV", "SUSHI", "YFI", "1INCH", "BAT",
}

// DefaultUniverse returns the crypto pairs the engine simulates out of the box.
func DefaultUniverse() []Instrument {
	out := make([]Instrument, 0, len(CryptoBases))
	for _, base := range CryptoBases {
		out = append(out, Instrument{Symbol: base + "/USDT", Segment: SegmentCrypto})
	}
	return out
}

// ParseUniverse turns "BTC/USDT", "crypto:BTC/USDT" or "equity:RELIANCE:NSE"
// entries into instruments. An empty list yields DefaultUniverse.
func ParseUniverse(entries []string) ([]Instrument, error) {
	if len(entries) == 0 {
		return DefaultUniverse(), nil
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]Instrument, 0, len(entries))
	for _, raw := range entries {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		var inst Instrument
		switch len(parts) {
		case 1:
			inst = NewInstrument(parts[0], SegmentCrypto, "")
		case 2, 3:
			seg, err := ParseSegment(parts[0])
			if err != nil {
				return nil, err
			}
			venue := ""
			if len(parts) == 3 {
				venue = parts[2]
			}
			inst = NewInstrument(parts[1], seg, venue)
		default:
			return nil, fmt.Errorf("bad instrument %q", raw)
		}
		if inst.Symbol == "" {
			return nil, fmt.Errorf("bad instrument %q", raw)
		}
		if _, dup := seen[inst.CacheKey()]; dup {
			continue
		}
		seen[inst.CacheKey()] = struct{}{}
		out = append(out, inst)
	}
	return out, nil
}
