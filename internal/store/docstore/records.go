package docstore

import (
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/order"
	"github.com/hatid/hatid-api/internal/domain/wallet"
	"github.com/hatid/hatid-api/internal/pkg/codec"
)

const (
	walletsCollection = "wallets"
	ledgerCollection  = "wallet_transactions"
	ordersCollection  = "orders"
	methodsCollection = "payment_methods"
)

// Amounts are stored as strings; Firestore has no exact decimal type.

type walletRecord struct {
	Balance    string     `firestore:"balance"`
	HoldAmount string     `firestore:"holdAmount,omitempty"`
	HoldUntil  *time.Time `firestore:"holdUntil,omitempty"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
}

// walletUpdates lists the fields this service owns on a wallet document.
// Anything else on the document belongs to whoever provisioned the wallet.
func walletUpdates(w *wallet.Wallet, c codec.Codec) ([]firestore.Update, error) {
	encoded, err := c.Encode(w.UserID, w.Balance)
	if err != nil {
		return nil, err
	}
	updates := []firestore.Update{
		{Path: "balance", Value: encoded},
		{Path: "updatedAt", Value: w.UpdatedAt},
	}
	if w.HasHold() {
		return append(updates,
			firestore.Update{Path: "holdAmount", Value: w.Hold.Amount.StringFixed(2)},
			firestore.Update{Path: "holdUntil", Value: w.Hold.Until},
		), nil
	}
	return append(updates,
		firestore.Update{Path: "holdAmount", Value: firestore.Delete},
		firestore.Update{Path: "holdUntil", Value: firestore.Delete},
	), nil
}

func (r walletRecord) toWallet(userID string, c codec.Codec) (*wallet.Wallet, error) {
	balance, err := c.Decode(userID, r.Balance)
	if err != nil {
		return nil, err
	}
	w := &wallet.Wallet{UserID: userID, Balance: balance, UpdatedAt: r.UpdatedAt}
	if r.HoldAmount != "" && r.HoldUntil != nil {
		amount, err := decimal.NewFromString(r.HoldAmount)
		if err != nil {
			return nil, err
		}
		w.Hold = &wallet.Hold{Amount: amount, Until: *r.HoldUntil}
	}
	return w, nil
}

type entryRecord struct {
	ID                string    `firestore:"id"`
	UserID            string    `firestore:"userId"`
	Kind              string    `firestore:"kind"`
	Amount            string    `firestore:"amount"`
	ResultingBalance  *string   `firestore:"resultingBalance"`
	RelatedExternalID *string   `firestore:"relatedExternalId"`
	CreatedAt         time.Time `firestore:"createdAt"`
}

func toEntryRecord(e *ledger.Entry) entryRecord {
	rec := entryRecord{
		ID:                e.ID,
		UserID:            e.UserID,
		Kind:              string(e.Kind),
		Amount:            e.Amount.StringFixed(2),
		RelatedExternalID: e.RelatedExternalID,
		CreatedAt:         e.CreatedAt,
	}
	if e.ResultingBalance.Valid {
		b := e.ResultingBalance.Decimal.StringFixed(2)
		rec.ResultingBalance = &b
	}
	return rec
}

func (r entryRecord) toEntry() (*ledger.Entry, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, err
	}
	e := &ledger.Entry{
		ID:                r.ID,
		UserID:            r.UserID,
		Kind:              ledger.Kind(r.Kind),
		Amount:            amount,
		RelatedExternalID: r.RelatedExternalID,
		CreatedAt:         r.CreatedAt,
	}
	if r.ResultingBalance != nil {
		b, err := decimal.NewFromString(*r.ResultingBalance)
		if err != nil {
			return nil, err
		}
		e.ResultingBalance = decimal.NewNullDecimal(b)
	}
	return e, nil
}

// entryDocID makes deduplicated entries collide on their gateway identity.
func entryDocID(e *ledger.Entry) string {
	if e.Kind.Deduplicated() {
		return dedupDocID(e.Kind, e.ExternalID())
	}
	return e.ID
}

func dedupDocID(kind ledger.Kind, externalID string) string {
	return strings.ReplaceAll(ledger.DedupKey(kind, externalID), "/", "%2F")
}

type orderRecord struct {
	CustomerID     string    `firestore:"customerId"`
	Status         string    `firestore:"status"`
	PaymentStatus  string    `firestore:"paymentStatus"`
	RefundStatus   string    `firestore:"refundStatus"`
	XenditChargeID *string   `firestore:"xenditChargeId"`
	RefundAmount   *string   `firestore:"refundAmount"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// orderUpdates lists the payment fields webhook ingestion may change. The
// order service owns the rest of the document, customerId included.
func orderUpdates(o *order.Order) []firestore.Update {
	updates := []firestore.Update{
		{Path: "status", Value: o.Status},
		{Path: "paymentStatus", Value: string(o.PaymentStatus)},
		{Path: "refundStatus", Value: o.RefundStatus},
		{Path: "updatedAt", Value: o.UpdatedAt},
	}
	if o.XenditChargeID != nil {
		updates = append(updates, firestore.Update{Path: "xenditChargeId", Value: *o.XenditChargeID})
	}
	if o.RefundAmount.Valid {
		updates = append(updates, firestore.Update{Path: "refundAmount", Value: o.RefundAmount.Decimal.StringFixed(2)})
	}
	return updates
}

func (r orderRecord) toOrder(id string) (*order.Order, error) {
	o := &order.Order{
		ID:             id,
		CustomerID:     r.CustomerID,
		Status:         r.Status,
		PaymentStatus:  order.PaymentStatus(r.PaymentStatus),
		RefundStatus:   r.RefundStatus,
		XenditChargeID: r.XenditChargeID,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.RefundAmount != nil {
		a, err := decimal.NewFromString(*r.RefundAmount)
		if err != nil {
			return nil, err
		}
		o.RefundAmount = decimal.NewNullDecimal(a)
	}
	return o, nil
}
