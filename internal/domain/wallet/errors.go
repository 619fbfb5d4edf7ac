package wallet

import "errors"

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	// ErrNegativeBalance is returned by stores that refuse to persist a broken invariant.
	ErrNegativeBalance = errors.New("wallet balance would become negative")
)
