package webhook

import (
	"context"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/order"
)

// OrderMutation updates an order after its ledger entry has been accepted.
type OrderMutation func(o *order.Order) error

// Store applies gateway events to orders.
type Store interface {
	// ApplyToOrder locks the order selected by ref, appends entry and runs fn
	// against the order, committing both or neither. It returns
	// order.ErrOrderNotFound when nothing matches ref and
	// ledger.ErrDuplicateEntry when the entry was already recorded. An entry
	// without a user is attributed to the order's customer.
	ApplyToOrder(ctx context.Context, ref order.Ref, entry *ledger.Entry, fn OrderMutation) (*order.Order, error)
}
