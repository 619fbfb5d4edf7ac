// Package storage archives webhook payloads that could not be applied so an
// operator can reconcile them by hand.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Archive stores an immutable JSON document under key.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Discard drops every document. Used when no bucket is configured; callers
// still log the rejection.
type Discard struct{}

func (Discard) Put(context.Context, string, []byte) error { return nil }

// RejectedKey builds webhooks/rejected/<date>/<event type>/<external id>.json.
func RejectedKey(eventType, externalID string, at time.Time) string {
	if eventType == "" {
		eventType = "unknown"
	}
	if externalID == "" {
		externalID = fmt.Sprintf("unidentified-%d", at.UnixNano())
	}
	return fmt.Sprintf("webhooks/rejected/%s/%s/%s.json",
		at.UTC().Format("2006-01-02"), sanitize(eventType), sanitize(externalID))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
