package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/paymentmethod"
)

// MethodLister lists a user's linked payment methods.
type MethodLister interface {
	ListByUser(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error)
}

// Service is the read side of the wallet API.
type Service struct {
	store   Store
	ledger  ledger.Reader
	methods MethodLister
}

func NewService(store Store, ledgerReader ledger.Reader, methods MethodLister) *Service {
	return &Service{store: store, ledger: ledgerReader, methods: methods}
}

func (s *Service) Wallet(ctx context.Context, userID string) (*Wallet, error) {
	return s.store.Get(ctx, userID)
}

// AvailableBalance returns the spendable balance, which already excludes holds.
func (s *Service) AvailableBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w, err := s.store.Get(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}

func (s *Service) History(ctx context.Context, userID string, page ledger.Page) ([]*ledger.Entry, error) {
	return s.ledger.ListByUser(ctx, userID, page.Normalize())
}

func (s *Service) PaymentMethods(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error) {
	return s.methods.ListByUser(ctx, userID)
}
