package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NUMERIC columns are read as text (col::text) and parsed here so no precision
// is lost through float conversion.
func parseNumeric(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty numeric string")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

// numericString renders d with two decimals for a NUMERIC(12,2) column.
func numericString(d decimal.Decimal) string {
	return d.StringFixed(2)
}
