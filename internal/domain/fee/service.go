// Package fee reserves platform fees against merchant and rider wallets while
// an order is in flight, then returns or keeps them once the order settles.
//
// A wallet has one hold slot carrying the total outstanding held amount.
// DeductAndHold adds to the slot; ReleaseHold and CollectHeldAmount settle the
// whole slot and are no-ops on an empty one.
package fee

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/wallet"
	"github.com/hatid/hatid-api/internal/pkg/codec"
	"github.com/hatid/hatid-api/internal/pkg/database"
	"github.com/hatid/hatid-api/internal/pkg/logger"
	"github.com/hatid/hatid-api/internal/pkg/metrics"
	"github.com/hatid/hatid-api/internal/pkg/money"
)

// DefaultHoldMinutes applies when a caller passes no hold duration.
const DefaultHoldMinutes = 30

// Notifier pushes a payload to a user's live connections.
type Notifier interface {
	SendToUser(userID string, payload interface{}) error
}

type HoldResult struct {
	NewBalance decimal.Decimal
	HeldAmount decimal.Decimal
	TotalHeld  decimal.Decimal
	HoldUntil  time.Time
}

type ReleaseResult struct {
	NewBalance     decimal.Decimal
	ReleasedAmount decimal.Decimal
}

type CollectResult struct {
	NewBalance      decimal.Decimal
	CollectedAmount decimal.Decimal
}

// WalletUpdate is pushed to the wallet owner after every fee transition.
type WalletUpdate struct {
	Type       string     `json:"type"`
	Kind       string     `json:"kind"`
	Amount     string     `json:"amount"`
	Balance    string     `json:"balance"`
	HeldAmount string     `json:"held_amount"`
	HoldUntil  *time.Time `json:"hold_until,omitempty"`
}

type Service struct {
	wallets     wallet.Store
	broadcaster *ledger.Broadcaster
	notifier    Notifier
	holdMinutes int
	now         func() time.Time
}

type Option func(*Service)

func WithBroadcaster(b *ledger.Broadcaster) Option { return func(s *Service) { s.broadcaster = b } }
func WithNotifier(n Notifier) Option               { return func(s *Service) { s.notifier = n } }
func WithClock(now func() time.Time) Option        { return func(s *Service) { s.now = now } }

// WithDefaultHoldMinutes overrides DefaultHoldMinutes. Non-positive values are ignored.
func WithDefaultHoldMinutes(m int) Option {
	return func(s *Service) {
		if m > 0 {
			s.holdMinutes = m
		}
	}
}

func NewService(wallets wallet.Store, opts ...Option) *Service {
	s := &Service{wallets: wallets, holdMinutes: DefaultHoldMinutes, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeductAndHold moves fee from the wallet balance into its hold slot.
func (s *Service) DeductAndHold(ctx context.Context, userID string, fee decimal.Decimal, role wallet.Role, holdMinutes int) (*HoldResult, error) {
	const op = "deduct_and_hold"
	if !money.IsPositive(fee) {
		return nil, s.fail(op, wallet.ErrInvalidAmount)
	}
	if !role.Valid() {
		return nil, s.fail(op, ErrInvalidRole)
	}
	if holdMinutes <= 0 {
		holdMinutes = s.holdMinutes
	}
	until := s.now().Add(time.Duration(holdMinutes) * time.Minute).UTC()

	var entry *ledger.Entry
	w, err := s.wallets.Mutate(ctx, userID, func(w *wallet.Wallet) (*ledger.Entry, error) {
		if w.Balance.LessThan(fee) {
			return nil, wallet.ErrInsufficientBalance
		}
		w.Balance = w.Balance.Sub(fee)
		w.Hold = &wallet.Hold{Amount: w.HeldAmount().Add(fee), Until: until}
		entry = &ledger.Entry{Kind: ledger.KindFeeHold, Amount: fee}
		return entry, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.committed(ctx, op, w, entry)
	logger.FromContext(ctx).Info().
		Str("user_id", userID).
		Str("role", string(role)).
		Str("amount", money.Format(fee)).
		Str("balance", money.Format(w.Balance)).
		Time("hold_until", until).
		Msg("wallet fee hold applied")

	return &HoldResult{NewBalance: w.Balance, HeldAmount: fee, TotalHeld: w.HeldAmount(), HoldUntil: until}, nil
}

// ReleaseHold returns the held amount to the balance. Without a hold it
// changes nothing and reports a zero release.
func (s *Service) ReleaseHold(ctx context.Context, userID string) (*ReleaseResult, error) {
	const op = "release_hold"

	var entry *ledger.Entry
	released := decimal.Zero
	w, err := s.wallets.Mutate(ctx, userID, func(w *wallet.Wallet) (*ledger.Entry, error) {
		entry, released = nil, decimal.Zero
		if !w.HasHold() {
			return nil, nil
		}
		released = w.Hold.Amount
		w.Balance = w.Balance.Add(released)
		w.Hold = nil
		entry = &ledger.Entry{Kind: ledger.KindFeeRelease, Amount: released}
		return entry, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	if entry == nil {
		metrics.RecordFeeOperation(op, "noop")
		logger.FromContext(ctx).Debug().Str("user_id", userID).Msg("no fee hold to release")
		return &ReleaseResult{NewBalance: w.Balance, ReleasedAmount: decimal.Zero}, nil
	}

	s.committed(ctx, op, w, entry)
	logger.FromContext(ctx).Info().
		Str("user_id", userID).
		Str("amount", money.Format(released)).
		Str("balance", money.Format(w.Balance)).
		Msg("wallet fee hold released")

	return &ReleaseResult{NewBalance: w.Balance, ReleasedAmount: released}, nil
}

// CollectHeldAmount keeps the held amount as platform revenue. The balance is
// untouched since the fee left it at hold time.
func (s *Service) CollectHeldAmount(ctx context.Context, userID string, role wallet.Role) (*CollectResult, error) {
	const op = "collect_held_amount"
	if !role.Valid() {
		return nil, s.fail(op, ErrInvalidRole)
	}

	var entry *ledger.Entry
	collected := decimal.Zero
	w, err := s.wallets.Mutate(ctx, userID, func(w *wallet.Wallet) (*ledger.Entry, error) {
		entry, collected = nil, decimal.Zero
		if !w.HasHold() {
			return nil, nil
		}
		collected = w.Hold.Amount
		w.Hold = nil
		entry = &ledger.Entry{Kind: ledger.KindFeeCollect, Amount: collected}
		return entry, nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	if entry == nil {
		metrics.RecordFeeOperation(op, "noop")
		logger.FromContext(ctx).Debug().Str("user_id", userID).Msg("no fee hold to collect")
		return &CollectResult{NewBalance: w.Balance, CollectedAmount: decimal.Zero}, nil
	}

	s.committed(ctx, op, w, entry)
	logger.FromContext(ctx).Info().
		Str("user_id", userID).
		Str("role", string(role)).
		Str("amount", money.Format(collected)).
		Msg("wallet fee collected")

	return &CollectResult{NewBalance: w.Balance, CollectedAmount: collected}, nil
}

func (s *Service) committed(ctx context.Context, op string, w *wallet.Wallet, entry *ledger.Entry) {
	metrics.RecordFeeOperation(op, "ok")
	s.broadcaster.Recorded(ctx, entry)

	if s.notifier == nil {
		return
	}
	update := WalletUpdate{
		Type:       "wallet.updated",
		Kind:       string(entry.Kind),
		Amount:     money.Format(entry.Amount),
		Balance:    money.Format(w.Balance),
		HeldAmount: money.Format(w.HeldAmount()),
	}
	if w.HasHold() {
		until := w.Hold.Until
		update.HoldUntil = &until
	}
	if err := s.notifier.SendToUser(w.UserID, update); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("user_id", w.UserID).Msg("failed to push wallet update")
	}
}

func (s *Service) fail(op string, err error) error {
	metrics.RecordFeeOperation(op, resultLabel(err))
	return err
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, wallet.ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, codec.ErrCodec):
		return "codec_error"
	case errors.Is(err, database.ErrPersistence):
		return "persistence_failure"
	default:
		return "error"
	}
}
