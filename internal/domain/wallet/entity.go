package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the marketplace role a fee is charged under.
type Role string

const (
	RoleMerchant Role = "merchant"
	RoleRider    Role = "rider"
)

func (r Role) Valid() bool {
	return r == RoleMerchant || r == RoleRider
}

// Hold is an amount already subtracted from Balance and reserved until Until.
type Hold struct {
	Amount decimal.Decimal `json:"amount"`
	Until  time.Time       `json:"until"`
}

// Wallet is a user's balance. Balance never goes negative and already
// excludes any held amount.
type Wallet struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Hold      *Hold           `json:"hold,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HasHold reports whether the wallet currently carries a positive hold.
func (w *Wallet) HasHold() bool {
	return w.Hold != nil && w.Hold.Amount.IsPositive()
}

// HeldAmount returns the held amount, zero when there is no hold.
func (w *Wallet) HeldAmount() decimal.Decimal {
	if !w.HasHold() {
		return decimal.Zero
	}
	return w.Hold.Amount
}

// Clone returns a deep copy so a mutation can be discarded.
func (w *Wallet) Clone() *Wallet {
	c := *w
	if w.Hold != nil {
		h := *w.Hold
		c.Hold = &h
	}
	return &c
}
