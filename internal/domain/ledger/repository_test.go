package ledger_test

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
	"github.com/hatid/hatid-api/internal/pkg/database"
)

func newMockRepo(t *testing.T) (*ledger.Repository, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	db := sqlx.NewDb(mockDB, "postgres")
	t.Cleanup(func() { db.Close() })
	return ledger.NewRepository(db), db, mock
}

func paymentEntry(chargeID string) *ledger.Entry {
	return &ledger.Entry{
		UserID:            "customer-1",
		Kind:              ledger.KindPaymentRecorded,
		Amount:            decimal.NewFromInt(150),
		RelatedExternalID: &chargeID,
	}
}

func TestInsertTxMapsUniqueViolation(t *testing.T) {
	repo, db, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = repo.InsertTx(context.Background(), tx, paymentEntry("ewc_1"))
	if !errors.Is(err, ledger.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	_ = tx.Rollback()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertTxWrapsOtherErrors(t *testing.T) {
	repo, db, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_transactions")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = repo.InsertTx(context.Background(), tx, paymentEntry("ewc_2"))
	if !errors.Is(err, database.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	_ = tx.Rollback()
}

func TestInsertTxRejectsGatewayEntryWithoutExternalID(t *testing.T) {
	repo, db, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	entry := paymentEntry("")
	if err := repo.InsertTx(context.Background(), tx, entry); !errors.Is(err, ledger.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	_ = tx.Rollback()
}

func TestExists(t *testing.T) {
	repo, _, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("refund_recorded", "rfd_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), ledger.KindRefundRecorded, "rfd_1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected entry to exist")
	}
}

func TestListByUser(t *testing.T) {
	repo, _, mock := newMockRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "user_id", "kind", "amount", "resulting_balance", "related_external_id", "created_at"}).
		AddRow("e2", "u1", "fee_collect", "50.00", "450.00", nil, now).
		AddRow("e1", "u1", "fee_hold", "50.00", "450.00", nil, now.Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("FROM wallet_transactions")).
		WithArgs("u1", 20, 0).
		WillReturnRows(rows)

	entries, err := repo.ListByUser(context.Background(), "u1", ledger.Page{})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != ledger.KindFeeCollect {
		t.Fatalf("expected newest entry first, got %s", entries[0].Kind)
	}
	if !entries[1].ResultingBalance.Valid || !entries[1].ResultingBalance.Decimal.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("unexpected resulting balance %v", entries[1].ResultingBalance)
	}
}
