package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks the customer's payment for an order.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

const (
	StatusAwaitingPayment = "awaiting_payment"
	StatusPending         = "pending"

	RefundNone      = "none"
	RefundSucceeded = "succeeded"
)

// Order holds the payment-related fields of an order. The order service owns
// every other field; this API only updates the ones below.
type Order struct {
	ID             string              `db:"id" json:"id"`
	CustomerID     string              `db:"customer_id" json:"customer_id"`
	Status         string              `db:"status" json:"status"`
	PaymentStatus  PaymentStatus       `db:"payment_status" json:"payment_status"`
	RefundStatus   string              `db:"refund_status" json:"refund_status"`
	XenditChargeID *string             `db:"xendit_charge_id" json:"xendit_charge_id,omitempty"`
	RefundAmount   decimal.NullDecimal `db:"refund_amount" json:"refund_amount"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// Ref selects an order either by id or by its gateway charge id.
type Ref struct {
	ID       string
	ChargeID string
}

func ByID(id string) Ref             { return Ref{ID: id} }
func ByChargeID(chargeID string) Ref { return Ref{ChargeID: chargeID} }

func (r Ref) String() string {
	if r.ID != "" {
		return "order:" + r.ID
	}
	return "charge:" + r.ChargeID
}

// Clone returns a copy safe to mutate.
func (o *Order) Clone() *Order {
	c := *o
	if o.XenditChargeID != nil {
		id := *o.XenditChargeID
		c.XenditChargeID = &id
	}
	return &c
}

// MarkPaid records a captured charge. An order already settled by a different
// charge is left untouched and ErrChargeConflict is returned.
func (o *Order) MarkPaid(chargeID string, at time.Time) error {
	if o.PaymentStatus != PaymentUnpaid && o.PaymentStatus != "" {
		if o.XenditChargeID != nil && *o.XenditChargeID == chargeID {
			return nil
		}
		return fmt.Errorf("%w: order %s already settled by another charge", ErrChargeConflict, o.ID)
	}
	o.PaymentStatus = PaymentPaid
	o.Status = StatusPending
	o.XenditChargeID = &chargeID
	o.UpdatedAt = at.UTC()
	return nil
}

// MarkRefunded records a completed refund. Partial refunds accumulate.
func (o *Order) MarkRefunded(amount decimal.Decimal, at time.Time) {
	total := amount
	if o.RefundAmount.Valid {
		total = o.RefundAmount.Decimal.Add(amount)
	}
	o.PaymentStatus = PaymentRefunded
	o.RefundStatus = RefundSucceeded
	o.RefundAmount = decimal.NewNullDecimal(total)
	o.UpdatedAt = at.UTC()
}
