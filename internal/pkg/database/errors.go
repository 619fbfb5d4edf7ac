package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrPersistence marks a transient datastore failure. Callers may retry.
var ErrPersistence = errors.New("persistence failure")

const uniqueViolation = "23505"

// Wrap tags err as a persistence failure for op. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
