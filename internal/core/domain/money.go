package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RawAmount is a monetary value as received from the order collaborator.
// It is kept verbatim and parsed on demand so that malformed values surface
// as errors instead of silently becoming zero.
type RawAmount string

// UnmarshalJSON accepts JSON strings, numbers and null.
func (r *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawAmount(s)
		return nil
	}
	*r = RawAmount(data)
	return nil
}

// IsZero reports whether the value is absent.
func (r RawAmount) IsZero() bool {
	return strings.TrimSpace(string(r)) == ""
}

// Parse converts the raw value. An absent value is zero.
func (r RawAmount) Parse() (decimal.Decimal, error) {
	return ParseAmount(string(r))
}

// ParseAmount parses a decimal monetary value. Empty input parses as zero;
// anything else that is not a plain decimal number is an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid monetary amount %q: %w", s, err)
	}
	return d, nil
}

// RoundMoney rounds to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
