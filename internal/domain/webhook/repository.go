package webhook

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/order"
	"github.com/hatid/hatid-api/internal/pkg/database"
)

// Repository is the Postgres Store. The order row lock serializes deliveries
// for the same order; the ledger's unique index rejects replays.
type Repository struct {
	db     *sqlx.DB
	orders *order.Repository
	ledger *ledger.Repository
}

func NewRepository(db *sqlx.DB, orders *order.Repository, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, orders: orders, ledger: ledgerRepo}
}

func (r *Repository) ApplyToOrder(ctx context.Context, ref order.Ref, entry *ledger.Entry, fn OrderMutation) (*order.Order, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, database.Wrap("begin order tx", err)
	}
	defer tx.Rollback()

	current, err := r.orders.GetForUpdateTx(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	if entry.UserID == "" {
		entry.UserID = current.CustomerID
	}
	if err := r.ledger.InsertTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := r.orders.UpdatePaymentTx(ctx, tx, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, database.Wrap("commit order tx", err)
	}
	return next, nil
}
