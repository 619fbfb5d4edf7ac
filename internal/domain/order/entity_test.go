package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func unpaid() *Order {
	return &Order{ID: "ord-1", CustomerID: "customer-1", Status: StatusAwaitingPayment, PaymentStatus: PaymentUnpaid, RefundStatus: RefundNone}
}

func TestMarkPaidSameChargeIsNoop(t *testing.T) {
	o := unpaid()
	paidAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := o.MarkPaid("ewc_1", paidAt); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if err := o.MarkPaid("ewc_1", paidAt.Add(time.Hour)); err != nil {
		t.Fatalf("repeat MarkPaid: %v", err)
	}
	if !o.UpdatedAt.Equal(paidAt) {
		t.Fatalf("expected order untouched by repeat, updated at %v", o.UpdatedAt)
	}
}

func TestMarkPaidRejectsOtherCharge(t *testing.T) {
	o := unpaid()
	if err := o.MarkPaid("ewc_1", time.Now()); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	o.MarkRefunded(decimal.NewFromInt(10), time.Now())

	err := o.MarkPaid("ewc_2", time.Now())
	if !errors.Is(err, ErrChargeConflict) {
		t.Fatalf("expected ErrChargeConflict, got %v", err)
	}
	if *o.XenditChargeID != "ewc_1" || o.PaymentStatus != PaymentRefunded {
		t.Fatalf("order changed on conflict: %s %s", *o.XenditChargeID, o.PaymentStatus)
	}
}

func TestMarkRefundedAccumulates(t *testing.T) {
	o := unpaid()
	o.MarkPaid("ewc_1", time.Now())
	o.MarkRefunded(decimal.NewFromInt(60), time.Now())
	o.MarkRefunded(decimal.NewFromInt(40), time.Now())

	if !o.RefundAmount.Valid || !o.RefundAmount.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected refund amount 100, got %v", o.RefundAmount)
	}
}
