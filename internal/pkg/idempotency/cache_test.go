package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestDisabledCacheNeverHits(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*Cache{nil, NewCache(nil, "webhook:")} {
		if err := c.Mark(ctx, "payment.succeeded:ewc_1", time.Hour); err != nil {
			t.Fatalf("Mark: %v", err)
		}
		seen, err := c.Seen(ctx, "payment.succeeded:ewc_1")
		if err != nil || seen {
			t.Fatalf("expected miss without redis, got seen=%v err=%v", seen, err)
		}
	}
}
