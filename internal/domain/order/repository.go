package order

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/hatid/hatid-api/internal/pkg/database"
)

// Repository reads and updates the payment fields of orders inside a caller's transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const selectOrder = `
	SELECT id, customer_id, status, payment_status, refund_status, xendit_charge_id, refund_amount, updated_at
	FROM orders
`

// GetForUpdateTx locks the order selected by ref.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, ref Ref) (*Order, error) {
	var (
		o   Order
		err error
	)
	switch {
	case ref.ID != "":
		err = tx.GetContext(ctx, &o, selectOrder+`WHERE id = $1 FOR UPDATE`, ref.ID)
	case ref.ChargeID != "":
		err = tx.GetContext(ctx, &o, selectOrder+`WHERE xendit_charge_id = $1 FOR UPDATE`, ref.ChargeID)
	default:
		return nil, ErrOrderNotFound
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, database.Wrap("lock order", err)
	}
	return &o, nil
}

// UpdatePaymentTx writes the payment fields of o.
func (r *Repository) UpdatePaymentTx(ctx context.Context, tx *sqlx.Tx, o *Order) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, refund_status = $4,
		    xendit_charge_id = $5, refund_amount = $6, updated_at = $7
		WHERE id = $1
	`, o.ID, o.Status, string(o.PaymentStatus), o.RefundStatus, o.XenditChargeID, o.RefundAmount, o.UpdatedAt)
	if err != nil {
		return database.Wrap("update order payment", err)
	}
	return nil
}
