package webhook

import "errors"

var (
	// ErrMalformedEvent marks a payload that can never be applied.
	ErrMalformedEvent = errors.New("malformed webhook event")
	// ErrDuplicateEvent means an earlier delivery already applied the event.
	ErrDuplicateEvent = errors.New("webhook event already processed")
	// ErrNotSucceeded means the payload reports a non-success status.
	ErrNotSucceeded = errors.New("webhook event does not report success")
	// ErrUnmatchedRefund means no order carries the refunded charge.
	ErrUnmatchedRefund = errors.New("refund does not match any order")
)
