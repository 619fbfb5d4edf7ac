package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hatid/hatid-api/internal/pkg/database"
)

const queryTimeout = 3 * time.Second

// Reader is the read side of the ledger, shared by every storage backend.
type Reader interface {
	// Exists reports whether an entry of kind with the given external id is recorded.
	Exists(ctx context.Context, kind Kind, externalID string) (bool, error)
	ListByUser(ctx context.Context, userID string, page Page) ([]*Entry, error)
}

// Repository is the PostgreSQL ledger. Writes happen only inside a caller's
// transaction so that the entry commits together with the state it describes.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Prepare fills the id and timestamp of e when they are unset and validates it.
func Prepare(e *Entry, now time.Time) error {
	if e == nil || !e.Kind.Valid() || e.UserID == "" {
		return ErrInvalidEntry
	}
	if e.Kind.Deduplicated() && e.ExternalID() == "" {
		return fmt.Errorf("%w: %s requires an external id", ErrInvalidEntry, e.Kind)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	return nil
}

// InsertTx appends e within tx. A replayed gateway event surfaces as ErrDuplicateEntry.
func (r *Repository) InsertTx(ctx context.Context, tx *sqlx.Tx, e *Entry) error {
	if err := Prepare(e, time.Now()); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, kind, amount, resulting_balance, related_external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.UserID, string(e.Kind), e.Amount, e.ResultingBalance, e.RelatedExternalID, e.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEntry
		}
		return database.Wrap("insert ledger entry", err)
	}
	return nil
}

func (r *Repository) Exists(ctx context.Context, kind Kind, externalID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM wallet_transactions WHERE kind = $1 AND related_external_id = $2
		)
	`, string(kind), externalID)
	if err != nil {
		return false, database.Wrap("check ledger entry", err)
	}
	return exists, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string, page Page) ([]*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	page = page.Normalize()
	entries := []*Entry{}
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, kind, amount, resulting_balance, related_external_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, database.Wrap("list ledger entries", err)
	}
	return entries, nil
}
