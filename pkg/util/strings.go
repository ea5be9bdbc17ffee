package util

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDecimalString parses numbers that upstream APIs send as JSON strings.
// Empty input is an error, not zero.
func ParseDecimalString(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return v, nil
}
