package ledger

import (
	"context"
	"time"

	"github.com/hatid/hatid-api/internal/pkg/events"
	"github.com/hatid/hatid-api/internal/pkg/logger"
	"github.com/hatid/hatid-api/internal/pkg/money"
)

// RecordedEvent is the message published for every committed entry.
type RecordedEvent struct {
	EntryID           string    `json:"entry_id"`
	UserID            string    `json:"user_id"`
	Kind              Kind      `json:"kind"`
	Amount            string    `json:"amount"`
	ResultingBalance  *string   `json:"resulting_balance,omitempty"`
	RelatedExternalID string    `json:"related_external_id,omitempty"`
	Currency          string    `json:"currency"`
	CreatedAt         time.Time `json:"created_at"`
}

func newRecordedEvent(e *Entry) RecordedEvent {
	ev := RecordedEvent{
		EntryID:           e.ID,
		UserID:            e.UserID,
		Kind:              e.Kind,
		Amount:            money.Format(e.Amount),
		RelatedExternalID: e.ExternalID(),
		Currency:          money.Currency,
		CreatedAt:         e.CreatedAt,
	}
	if e.ResultingBalance.Valid {
		b := money.Format(e.ResultingBalance.Decimal)
		ev.ResultingBalance = &b
	}
	return ev
}

// Broadcaster publishes committed entries. Publishing is best effort: the
// entry is already durable, so failures are logged and never returned.
type Broadcaster struct {
	pub   events.Publisher
	topic string
}

func NewBroadcaster(pub events.Publisher, topic string) *Broadcaster {
	return &Broadcaster{pub: pub, topic: topic}
}

// Recorded publishes e keyed by its user. Safe on a nil Broadcaster.
func (b *Broadcaster) Recorded(ctx context.Context, e *Entry) {
	if b == nil || b.pub == nil || e == nil {
		return
	}
	if err := b.pub.Publish(ctx, b.topic, e.UserID, newRecordedEvent(e)); err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("entry_id", e.ID).
			Str("kind", string(e.Kind)).
			Msg("failed to publish ledger entry")
	}
}
