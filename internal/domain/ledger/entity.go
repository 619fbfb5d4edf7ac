package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the transition an entry records.
type Kind string

const (
	KindFeeHold         Kind = "fee_hold"
	KindFeeRelease      Kind = "fee_release"
	KindFeeCollect      Kind = "fee_collect"
	KindPaymentRecorded Kind = "payment_recorded"
	KindRefundRecorded  Kind = "refund_recorded"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindFeeHold, KindFeeRelease, KindFeeCollect, KindPaymentRecorded, KindRefundRecorded:
		return true
	}
	return false
}

// Deduplicated reports whether entries of this kind are unique per external id.
func (k Kind) Deduplicated() bool {
	return k == KindPaymentRecorded || k == KindRefundRecorded
}

// Entry is an immutable ledger record. ResultingBalance is the wallet balance
// after the transition; gateway kinds do not touch a wallet and leave it null.
type Entry struct {
	ID                string              `db:"id" json:"id"`
	UserID            string              `db:"user_id" json:"user_id"`
	Kind              Kind                `db:"kind" json:"kind"`
	Amount            decimal.Decimal     `db:"amount" json:"amount"`
	ResultingBalance  decimal.NullDecimal `db:"resulting_balance" json:"resulting_balance"`
	RelatedExternalID *string             `db:"related_external_id" json:"related_external_id,omitempty"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
}

// ExternalID returns RelatedExternalID or "".
func (e *Entry) ExternalID() string {
	if e.RelatedExternalID == nil {
		return ""
	}
	return *e.RelatedExternalID
}

// DedupKey is the identity used to detect a replayed gateway event.
func DedupKey(kind Kind, externalID string) string {
	return string(kind) + ":" + externalID
}

// Page bounds a ledger listing.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
