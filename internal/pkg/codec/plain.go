package codec

import "github.com/shopspring/decimal"

// Plain stores balances as fixed-point text. Used in tests and local development.
type Plain struct{}

func (Plain) Encode(_ string, amount decimal.Decimal) (string, error) {
	if err := checkEncodable(amount); err != nil {
		return "", err
	}
	return amount.StringFixed(2), nil
}

func (Plain) Decode(_, raw string) (decimal.Decimal, error) {
	return parsePlain(raw)
}
