// Package docstore keeps wallets, the ledger, orders and payment methods in
// Cloud Firestore. Every write runs inside a Firestore transaction; concurrent
// writers to the same documents are retried by the client.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/order"
	"github.com/hatid/hatid-api/internal/domain/paymentmethod"
	"github.com/hatid/hatid-api/internal/domain/wallet"
	"github.com/hatid/hatid-api/internal/domain/webhook"
	"github.com/hatid/hatid-api/internal/pkg/codec"
	"github.com/hatid/hatid-api/internal/pkg/database"
)

var (
	_ wallet.Store        = (*Store)(nil)
	_ webhook.Store       = (*Store)(nil)
	_ ledger.Reader       = (*LedgerReader)(nil)
	_ paymentmethod.Store = (*MethodStore)(nil)
)

// errDuplicate aborts a transaction whose dedup document already exists.
var errDuplicate = errors.New("dedup document exists")

type Store struct {
	client *firestore.Client
	codec  codec.Codec
	now    func() time.Time
}

func New(client *firestore.Client, c codec.Codec) *Store {
	return &Store{client: client, codec: c, now: time.Now}
}

func (s *Store) Get(ctx context.Context, userID string) (*wallet.Wallet, error) {
	snap, err := s.client.Collection(walletsCollection).Doc(userID).Get(ctx)
	if err != nil {
		return nil, s.notFound(err, wallet.ErrWalletNotFound, "get wallet")
	}
	return s.decodeWallet(snap)
}

func (s *Store) Mutate(ctx context.Context, userID string, fn wallet.MutateFunc) (*wallet.Wallet, error) {
	walletRef := s.client.Collection(walletsCollection).Doc(userID)

	var result *wallet.Wallet
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(walletRef)
		if err != nil {
			return s.notFound(err, wallet.ErrWalletNotFound, "lock wallet")
		}
		current, err := s.decodeWallet(snap)
		if err != nil {
			return err
		}

		next := current.Clone()
		entry, err := fn(next)
		if err != nil {
			return err
		}
		if entry == nil {
			result = current
			return nil
		}

		if err := wallet.Stamp(next, entry, s.now()); err != nil {
			return err
		}
		updates, err := walletUpdates(next, s.codec)
		if err != nil {
			return err
		}
		if err := tx.Update(walletRef, updates); err != nil {
			return err
		}
		if err := tx.Create(s.client.Collection(ledgerCollection).Doc(entryDocID(entry)), toEntryRecord(entry)); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, s.txError(err, "mutate wallet")
	}
	return result, nil
}

func (s *Store) ApplyToOrder(ctx context.Context, ref order.Ref, entry *ledger.Entry, fn webhook.OrderMutation) (*order.Order, error) {
	var result *order.Order
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, current, err := s.findOrder(tx, ref)
		if err != nil {
			return err
		}

		e := *entry
		if e.UserID == "" {
			e.UserID = current.CustomerID
		}
		if err := ledger.Prepare(&e, s.now()); err != nil {
			return err
		}
		entryRef := s.client.Collection(ledgerCollection).Doc(entryDocID(&e))
		if _, err := tx.Get(entryRef); err == nil {
			return errDuplicate
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := tx.Create(entryRef, toEntryRecord(&e)); err != nil {
			return err
		}
		if err := tx.Update(orderRef, orderUpdates(next)); err != nil {
			return err
		}
		*entry = e
		result = next
		return nil
	})
	if err != nil {
		return nil, s.txError(err, "apply order event")
	}
	return result, nil
}

// Ledger returns the ledger read view.
func (s *Store) Ledger() *LedgerReader { return &LedgerReader{s: s} }

// PaymentMethods returns the payment method view.
func (s *Store) PaymentMethods() *MethodStore { return &MethodStore{s: s} }

func (s *Store) findOrder(tx *firestore.Transaction, ref order.Ref) (*firestore.DocumentRef, *order.Order, error) {
	orders := s.client.Collection(ordersCollection)

	var snap *firestore.DocumentSnapshot
	switch {
	case ref.ID != "":
		doc, err := tx.Get(orders.Doc(ref.ID))
		if err != nil {
			return nil, nil, s.notFound(err, order.ErrOrderNotFound, "lock order")
		}
		snap = doc
	case ref.ChargeID != "":
		docs, err := tx.Documents(orders.Where("xenditChargeId", "==", ref.ChargeID).Limit(1)).GetAll()
		if err != nil {
			return nil, nil, database.Wrap("find order by charge", err)
		}
		if len(docs) == 0 {
			return nil, nil, order.ErrOrderNotFound
		}
		snap = docs[0]
	default:
		return nil, nil, order.ErrOrderNotFound
	}

	var rec orderRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, nil, fmt.Errorf("%w: order %s: %v", codec.ErrCodec, snap.Ref.ID, err)
	}
	o, err := rec.toOrder(snap.Ref.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: order %s: %v", codec.ErrCodec, snap.Ref.ID, err)
	}
	return snap.Ref, o, nil
}

func (s *Store) decodeWallet(snap *firestore.DocumentSnapshot) (*wallet.Wallet, error) {
	var rec walletRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("%w: wallet %s: %v", codec.ErrCodec, snap.Ref.ID, err)
	}
	w, err := rec.toWallet(snap.Ref.ID, s.codec)
	if err != nil {
		if errors.Is(err, codec.ErrCodec) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: wallet %s: %v", codec.ErrCodec, snap.Ref.ID, err)
	}
	return w, nil
}

func (s *Store) notFound(err, sentinel error, op string) error {
	if status.Code(err) == codes.NotFound {
		return sentinel
	}
	return database.Wrap(op, err)
}

// txError keeps domain errors raised inside a transaction and tags everything
// else as a persistence failure.
func (s *Store) txError(err error, op string) error {
	switch {
	case errors.Is(err, errDuplicate), status.Code(err) == codes.AlreadyExists:
		return ledger.ErrDuplicateEntry
	case errors.Is(err, database.ErrPersistence),
		errors.Is(err, codec.ErrCodec),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case status.Code(err) != codes.Unknown:
		return database.Wrap(op, err)
	default:
		return err
	}
}

// LedgerReader implements ledger.Reader over Firestore.
type LedgerReader struct{ s *Store }

func (l *LedgerReader) Exists(ctx context.Context, kind ledger.Kind, externalID string) (bool, error) {
	entries := l.s.client.Collection(ledgerCollection)
	if kind.Deduplicated() {
		_, err := entries.Doc(dedupDocID(kind, externalID)).Get(ctx)
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		if err != nil {
			return false, database.Wrap("check ledger entry", err)
		}
		return true, nil
	}

	iter := entries.Where("kind", "==", string(kind)).Where("relatedExternalId", "==", externalID).Limit(1).Documents(ctx)
	defer iter.Stop()
	_, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, database.Wrap("check ledger entry", err)
	}
	return true, nil
}

func (l *LedgerReader) ListByUser(ctx context.Context, userID string, page ledger.Page) ([]*ledger.Entry, error) {
	page = page.Normalize()
	docs, err := l.s.client.Collection(ledgerCollection).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Offset(page.Offset).
		Limit(page.Limit).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, database.Wrap("list ledger entries", err)
	}

	out := make([]*ledger.Entry, 0, len(docs))
	for _, doc := range docs {
		var rec entryRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("%w: ledger entry %s: %v", codec.ErrCodec, doc.Ref.ID, err)
		}
		e, err := rec.toEntry()
		if err != nil {
			return nil, fmt.Errorf("%w: ledger entry %s: %v", codec.ErrCodec, doc.Ref.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// MethodStore implements paymentmethod.Store over Firestore. Documents are
// keyed by token id so a replayed link collides.
type MethodStore struct{ s *Store }

func (m *MethodStore) Link(ctx context.Context, pm *paymentmethod.PaymentMethod) (bool, error) {
	if err := paymentmethod.Prepare(pm, m.s.now()); err != nil {
		return false, err
	}
	_, err := m.s.client.Collection(methodsCollection).Doc(pm.TokenID).Create(ctx, pm)
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, database.Wrap("link payment method", err)
	}
	return true, nil
}

func (m *MethodStore) ListByUser(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error) {
	docs, err := m.s.client.Collection(methodsCollection).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, database.Wrap("list payment methods", err)
	}

	out := make([]*paymentmethod.PaymentMethod, 0, len(docs))
	for _, doc := range docs {
		var pm paymentmethod.PaymentMethod
		if err := doc.DataTo(&pm); err != nil {
			return nil, fmt.Errorf("%w: payment method %s: %v", codec.ErrCodec, doc.Ref.ID, err)
		}
		out = append(out, &pm)
	}
	return out, nil
}
