package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/domain/ledger"
)

// MutateFunc applies a transition to w in place and returns the ledger entry
// describing it. Returning an error aborts without writing. Returning a nil
// entry means there is nothing to record and nothing is written.
type MutateFunc func(w *Wallet) (*ledger.Entry, error)

// Store persists wallets. Mutate is the only write path: it runs fn against
// the current wallet as one atomic read-modify-write, and persists the wallet
// together with the returned ledger entry.
type Store interface {
	Get(ctx context.Context, userID string) (*Wallet, error)
	Mutate(ctx context.Context, userID string, fn MutateFunc) (*Wallet, error)
}

// Validate checks the invariants every store enforces before writing.
func Validate(w *Wallet) error {
	if w.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	if w.Hold != nil && !w.Hold.Amount.IsPositive() {
		w.Hold = nil
	}
	return nil
}

// Stamp finalizes a mutated wallet and its entry before they are written.
func Stamp(w *Wallet, entry *ledger.Entry, now time.Time) error {
	if err := Validate(w); err != nil {
		return err
	}
	w.UpdatedAt = now.UTC()
	entry.UserID = w.UserID
	entry.ResultingBalance = decimal.NewNullDecimal(w.Balance)
	entry.CreatedAt = w.UpdatedAt
	return ledger.Prepare(entry, now)
}
