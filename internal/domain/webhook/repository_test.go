package webhook_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/order"
	"github.com/hatid/hatid-api/internal/domain/webhook"
)

var orderColumns = []string{"id", "customer_id", "status", "payment_status", "refund_status", "xendit_charge_id", "refund_amount", "updated_at"}

func newPostgresStore(t *testing.T) (*webhook.Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherFunc(func(expected, actual string) error {
		if !regexp.MustCompile(regexp.QuoteMeta(expected)).MatchString(actual) {
			return errors.New("query mismatch: " + actual)
		}
		return nil
	})))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	db := sqlx.NewDb(mockDB, "postgres")
	t.Cleanup(func() { db.Close() })
	return webhook.NewRepository(db, order.NewRepository(), ledger.NewRepository(db)), mock
}

func paymentEntry(chargeID string) *ledger.Entry {
	return &ledger.Entry{Kind: ledger.KindPaymentRecorded, Amount: decimal.NewFromInt(250), RelatedExternalID: &chargeID}
}

func markPaid(chargeID string) webhook.OrderMutation {
	return func(o *order.Order) error {
		return o.MarkPaid(chargeID, time.Now())
	}
}

func TestApplyToOrderCommits(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE id = $1 FOR UPDATE").
		WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("ord-1", "customer-1", order.StatusAwaitingPayment, "unpaid", order.RefundNone, nil, nil, time.Now()))
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(sqlmock.AnyArg(), "customer-1", "payment_recorded", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE orders").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry := paymentEntry("ewc_1")
	o, err := store.ApplyToOrder(context.Background(), order.ByID("ord-1"), entry, markPaid("ewc_1"))
	if err != nil {
		t.Fatalf("ApplyToOrder: %v", err)
	}
	if o.PaymentStatus != order.PaymentPaid || entry.UserID != "customer-1" {
		t.Fatalf("unexpected order %+v entry %+v", o, entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyToOrderDuplicateRollsBack(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE id = $1 FOR UPDATE").
		WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows(orderColumns).
			AddRow("ord-1", "customer-1", order.StatusPending, "paid", order.RefundNone, "ewc_1", nil, time.Now()))
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := store.ApplyToOrder(context.Background(), order.ByID("ord-1"), paymentEntry("ewc_1"), markPaid("ewc_1"))
	if !errors.Is(err, ledger.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyToOrderMissingOrder(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("WHERE xendit_charge_id = $1 FOR UPDATE").
		WithArgs("ewc_unknown").
		WillReturnRows(sqlmock.NewRows(orderColumns))
	mock.ExpectRollback()

	_, err := store.ApplyToOrder(context.Background(), order.ByChargeID("ewc_unknown"), paymentEntry("rfd_1"), markPaid("x"))
	if !errors.Is(err, order.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
