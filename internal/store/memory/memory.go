// Package memory is a process-local implementation of every store. It backs
// STORAGE_DRIVER=memory and the package tests. Balances still pass through
// the configured codec so that decode failures surface as they would in
// production.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/order"
	"github.com/hatid/hatid-api/internal/domain/paymentmethod"
	"github.com/hatid/hatid-api/internal/domain/wallet"
	"github.com/hatid/hatid-api/internal/domain/webhook"
	"github.com/hatid/hatid-api/internal/pkg/codec"
)

type walletRecord struct {
	balance   string
	hold      *wallet.Hold
	updatedAt time.Time
}

// Store serializes every operation behind one mutex.
type Store struct {
	mu      sync.Mutex
	codec   codec.Codec
	now     func() time.Time
	wallets map[string]walletRecord
	entries []*ledger.Entry
	dedup   map[string]struct{}
	orders  map[string]*order.Order
	methods map[string]*paymentmethod.PaymentMethod
}

var (
	_ wallet.Store        = (*Store)(nil)
	_ webhook.Store       = (*Store)(nil)
	_ ledger.Reader       = (*LedgerReader)(nil)
	_ paymentmethod.Store = (*MethodStore)(nil)
)

func New(c codec.Codec) *Store {
	return &Store{
		codec:   c,
		now:     time.Now,
		wallets: make(map[string]walletRecord),
		dedup:   make(map[string]struct{}),
		orders:  make(map[string]*order.Order),
		methods: make(map[string]*paymentmethod.PaymentMethod),
	}
}

// SeedWallet creates or replaces a wallet with the given balance and no hold.
func (s *Store) SeedWallet(userID string, balance decimal.Decimal) error {
	encoded, err := s.codec.Encode(userID, balance)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[userID] = walletRecord{balance: encoded, updatedAt: s.now().UTC()}
	return nil
}

// SetRawBalance stores raw as the encoded balance without validation.
func (s *Store) SetRawBalance(userID, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.wallets[userID]
	rec.balance = raw
	s.wallets[userID] = rec
}

// SeedOrder stores a copy of o.
func (s *Store) SeedOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
}

// Order returns a copy of the order with id.
func (s *Store) Order(id string) (*order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Entries returns every ledger entry in insertion order.
func (s *Store) Entries() []*ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledger.Entry, len(s.entries))
	for i, e := range s.entries {
		c := *e
		out[i] = &c
	}
	return out
}

func (s *Store) Get(ctx context.Context, userID string) (*wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(userID)
}

func (s *Store) Mutate(ctx context.Context, userID string, fn wallet.MutateFunc) (*wallet.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	entry, err := fn(next)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return current, nil
	}

	if err := wallet.Stamp(next, entry, s.now()); err != nil {
		return nil, err
	}
	encoded, err := s.codec.Encode(userID, next.Balance)
	if err != nil {
		return nil, err
	}
	if err := s.appendEntry(entry); err != nil {
		return nil, err
	}

	var hold *wallet.Hold
	if next.HasHold() {
		h := *next.Hold
		hold = &h
	}
	s.wallets[userID] = walletRecord{balance: encoded, hold: hold, updatedAt: next.UpdatedAt}
	return next, nil
}

func (s *Store) ApplyToOrder(ctx context.Context, ref order.Ref, entry *ledger.Entry, fn webhook.OrderMutation) (*order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.findOrder(ref)
	if current == nil {
		return nil, order.ErrOrderNotFound
	}
	if entry.UserID == "" {
		entry.UserID = current.CustomerID
	}
	if err := ledger.Prepare(entry, s.now()); err != nil {
		return nil, err
	}
	if _, dup := s.dedup[ledger.DedupKey(entry.Kind, entry.ExternalID())]; dup && entry.Kind.Deduplicated() {
		return nil, ledger.ErrDuplicateEntry
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := s.appendEntry(entry); err != nil {
		return nil, err
	}
	s.orders[next.ID] = next
	return next.Clone(), nil
}

// Ledger returns the ledger read view.
func (s *Store) Ledger() *LedgerReader { return &LedgerReader{s: s} }

// PaymentMethods returns the payment method view.
func (s *Store) PaymentMethods() *MethodStore { return &MethodStore{s: s} }

func (s *Store) load(userID string) (*wallet.Wallet, error) {
	rec, ok := s.wallets[userID]
	if !ok {
		return nil, wallet.ErrWalletNotFound
	}
	balance, err := s.codec.Decode(userID, rec.balance)
	if err != nil {
		return nil, err
	}
	w := &wallet.Wallet{UserID: userID, Balance: balance, UpdatedAt: rec.updatedAt}
	if rec.hold != nil {
		h := *rec.hold
		w.Hold = &h
	}
	return w, nil
}

func (s *Store) findOrder(ref order.Ref) *order.Order {
	if ref.ID != "" {
		return s.orders[ref.ID]
	}
	if ref.ChargeID == "" {
		return nil
	}
	for _, o := range s.orders {
		if o.XenditChargeID != nil && *o.XenditChargeID == ref.ChargeID {
			return o
		}
	}
	return nil
}

func (s *Store) appendEntry(e *ledger.Entry) error {
	if e.Kind.Deduplicated() {
		key := ledger.DedupKey(e.Kind, e.ExternalID())
		if _, dup := s.dedup[key]; dup {
			return ledger.ErrDuplicateEntry
		}
		s.dedup[key] = struct{}{}
	}
	c := *e
	s.entries = append(s.entries, &c)
	return nil
}

// LedgerReader implements ledger.Reader over the store.
type LedgerReader struct{ s *Store }

func (l *LedgerReader) Exists(ctx context.Context, kind ledger.Kind, externalID string) (bool, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if kind.Deduplicated() {
		_, ok := l.s.dedup[ledger.DedupKey(kind, externalID)]
		return ok, nil
	}
	for _, e := range l.s.entries {
		if e.Kind == kind && e.ExternalID() == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (l *LedgerReader) ListByUser(ctx context.Context, userID string, page ledger.Page) ([]*ledger.Entry, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	page = page.Normalize()
	var matched []*ledger.Entry
	for i := len(l.s.entries) - 1; i >= 0; i-- {
		if e := l.s.entries[i]; e.UserID == userID {
			c := *e
			matched = append(matched, &c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if page.Offset >= len(matched) {
		return []*ledger.Entry{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Offset:end], nil
}

// MethodStore implements paymentmethod.Store over the store.
type MethodStore struct{ s *Store }

func (m *MethodStore) Link(ctx context.Context, pm *paymentmethod.PaymentMethod) (bool, error) {
	if err := paymentmethod.Prepare(pm, m.s.now()); err != nil {
		return false, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.methods[pm.TokenID]; ok {
		return false, nil
	}
	c := *pm
	m.s.methods[pm.TokenID] = &c
	return true, nil
}

func (m *MethodStore) ListByUser(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []*paymentmethod.PaymentMethod{}
	for _, pm := range m.s.methods {
		if pm.UserID == userID {
			c := *pm
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
