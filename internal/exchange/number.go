package exchange

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses a venue price or size string. Empty, non-numeric
// and non-finite values are ErrMalformed.
func ParseDecimal(field, s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: %s is empty", ErrMalformed, field)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrMalformed, field, s, err)
	}

	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %s %q out of range", ErrMalformed, field, s)
	}
	return f, nil
}

// ParseOptionalDecimal parses an optional field. Missing or invalid input
// yields nil.
func ParseOptionalDecimal(s string) *float64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	f, err := ParseDecimal("", s)
	if err != nil {
		return nil
	}
	return &f
}

// ParseMillis parses an epoch-millisecond timestamp string. Empty input is 0.
func ParseMillis(field, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrMalformed, field, s, err)
	}
	return ms, nil
}
