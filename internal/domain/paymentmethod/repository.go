package paymentmethod

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hatid/hatid-api/internal/pkg/database"
)

var ErrInvalidMethod = errors.New("invalid payment method")

// Store persists linked payment methods.
type Store interface {
	// Link stores m unless its token is already linked. created is false for a replay.
	Link(ctx context.Context, m *PaymentMethod) (created bool, err error)
	ListByUser(ctx context.Context, userID string) ([]*PaymentMethod, error)
}

// Prepare validates m and fills generated fields.
func Prepare(m *PaymentMethod, now time.Time) error {
	if m == nil || m.UserID == "" || m.TokenID == "" {
		return ErrInvalidMethod
	}
	if m.Type != TypeGcash && m.Type != TypeBank {
		return ErrInvalidMethod
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now.UTC()
	}
	return nil
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Link(ctx context.Context, m *PaymentMethod) (bool, error) {
	if err := Prepare(m, time.Now()); err != nil {
		return false, err
	}

	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO payment_methods (id, user_id, type, token_id, channel_code, account_label, created_at)
		VALUES (:id, :user_id, :type, :token_id, :channel_code, :account_label, :created_at)
		ON CONFLICT (token_id) DO NOTHING
	`, m)
	if err != nil {
		return false, database.Wrap("link payment method", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, database.Wrap("link payment method", err)
	}
	return n == 1, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]*PaymentMethod, error) {
	methods := []*PaymentMethod{}
	err := r.db.SelectContext(ctx, &methods, `
		SELECT id, user_id, type, token_id, channel_code, account_label, created_at
		FROM payment_methods
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, database.Wrap("list payment methods", err)
	}
	return methods, nil
}
