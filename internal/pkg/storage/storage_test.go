package storage

import (
	"strings"
	"testing"
	"time"
)

func TestRejectedKey(t *testing.T) {
	at := time.Date(2025, 3, 1, 23, 30, 0, 0, time.FixedZone("PHT", 8*3600))
	got := RejectedKey("payment.succeeded", "ewc_123/../x", at)
	want := "webhooks/rejected/2025-03-01/payment.succeeded/ewc_123_.._x.json"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRejectedKeyWithoutIdentity(t *testing.T) {
	got := RejectedKey("", "", time.Unix(0, 42))
	if !strings.HasPrefix(got, "webhooks/rejected/1970-01-01/unknown/unidentified-42") {
		t.Fatalf("unexpected key %s", got)
	}
}
