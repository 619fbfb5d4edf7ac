// Package codec converts wallet balances to and from their at-rest representation.
//
// A balance that cannot be decoded is an error, never zero: callers must not
// treat an unreadable balance as an empty wallet.
package codec

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/pkg/money"
)

// ErrCodec is returned for any balance that cannot be encoded or decoded.
var ErrCodec = errors.New("balance codec error")

// Codec encodes balances for storage. Decode(u, Encode(u, x)) == x for every
// non-negative amount with at most two decimal places. The user id binds the
// value to its wallet; implementations may ignore it.
type Codec interface {
	Encode(userID string, amount decimal.Decimal) (string, error)
	Decode(userID, raw string) (decimal.Decimal, error)
}

func checkEncodable(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrCodec, amount)
	}
	if !money.HasValidScale(amount) {
		return fmt.Errorf("%w: amount %s exceeds %d decimal places", ErrCodec, amount, money.Scale)
	}
	return nil
}

func parsePlain(raw string) (decimal.Decimal, error) {
	d, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed amount", ErrCodec)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative amount", ErrCodec)
	}
	return d, nil
}
