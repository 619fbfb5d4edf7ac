package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/pkg/codec"
	"github.com/hatid/hatid-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

type walletRow struct {
	UserID     string              `db:"user_id"`
	Balance    string              `db:"balance"`
	HoldAmount decimal.NullDecimal `db:"hold_amount"`
	HoldUntil  sql.NullTime        `db:"hold_until"`
	UpdatedAt  time.Time           `db:"updated_at"`
}

// Repository is the PostgreSQL wallet store. Balances are stored through the codec.
type Repository struct {
	db     *sqlx.DB
	codec  codec.Codec
	ledger *ledger.Repository
	now    func() time.Time
}

func NewRepository(db *sqlx.DB, c codec.Codec, ledgerRepo *ledger.Repository) *Repository {
	return &Repository{db: db, codec: c, ledger: ledgerRepo, now: time.Now}
}

func (r *Repository) Get(ctx context.Context, userID string) (*Wallet, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row walletRow
	err := r.db.GetContext(ctx, &row, `
		SELECT user_id, balance, hold_amount, hold_until, updated_at
		FROM wallets WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, database.Wrap("get wallet", err)
	}
	return r.decode(row)
}

func (r *Repository) Mutate(ctx context.Context, userID string, fn MutateFunc) (*Wallet, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, database.Wrap("begin wallet tx", err)
	}
	defer tx.Rollback()

	current, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	entry, err := fn(next)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return current, nil
	}

	if err := Stamp(next, entry, r.now()); err != nil {
		return nil, err
	}
	if err := r.updateWallet(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := r.ledger.InsertTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, database.Wrap("commit wallet tx", err)
	}
	return next, nil
}

func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID string) (*Wallet, error) {
	var row walletRow
	err := tx.GetContext(ctx, &row, `
		SELECT user_id, balance, hold_amount, hold_until, updated_at
		FROM wallets WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, database.Wrap("lock wallet", err)
	}
	return r.decode(row)
}

func (r *Repository) updateWallet(ctx context.Context, tx *sqlx.Tx, w *Wallet) error {
	encoded, err := r.codec.Encode(w.UserID, w.Balance)
	if err != nil {
		return err
	}

	var holdAmount decimal.NullDecimal
	var holdUntil sql.NullTime
	if w.HasHold() {
		holdAmount = decimal.NewNullDecimal(w.Hold.Amount)
		holdUntil = sql.NullTime{Time: w.Hold.Until, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $2, hold_amount = $3, hold_until = $4, updated_at = $5
		WHERE user_id = $1
	`, w.UserID, encoded, holdAmount, holdUntil, w.UpdatedAt)
	if err != nil {
		return database.Wrap("update wallet", err)
	}
	return nil
}

func (r *Repository) decode(row walletRow) (*Wallet, error) {
	balance, err := r.codec.Decode(row.UserID, row.Balance)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", row.UserID, err)
	}

	w := &Wallet{UserID: row.UserID, Balance: balance, UpdatedAt: row.UpdatedAt}
	if row.HoldAmount.Valid && row.HoldAmount.Decimal.IsPositive() {
		w.Hold = &Hold{Amount: row.HoldAmount.Decimal, Until: row.HoldUntil.Time}
	}
	return w, nil
}
