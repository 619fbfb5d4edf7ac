package ledger

import "errors"

var (
	// ErrDuplicateEntry means an entry with the same kind and external id already exists.
	ErrDuplicateEntry = errors.New("ledger entry already recorded")
	ErrInvalidEntry   = errors.New("invalid ledger entry")
)
