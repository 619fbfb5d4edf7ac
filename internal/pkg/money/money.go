// Package money holds the fixed-point rules for PHP amounts handled by the wallet.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places carried by every amount.
const Scale = 2

// Currency is the only currency the wallet accepts.
const Currency = "PHP"

var ErrInvalidFormat = errors.New("money: invalid amount format")

// Parse reads a decimal amount and rejects anything with more than Scale decimal places.
func Parse(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidFormat
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidFormat
	}
	if !HasValidScale(d) {
		return decimal.Zero, ErrInvalidFormat
	}
	return d, nil
}

// HasValidScale reports whether d is representable with Scale decimal places.
func HasValidScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}

// IsPositive reports whether d is a strictly positive amount with a valid scale.
func IsPositive(d decimal.Decimal) bool {
	return d.IsPositive() && HasValidScale(d)
}

// Format renders d with exactly Scale decimal places.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// SameCurrency reports whether code names the wallet currency. Empty means unspecified.
func SameCurrency(code string) bool {
	return code == "" || strings.EqualFold(code, Currency)
}
