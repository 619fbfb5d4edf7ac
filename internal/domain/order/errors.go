package order

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrChargeConflict means the order is already paid through another charge.
	ErrChargeConflict = errors.New("order already paid by another charge")
)
