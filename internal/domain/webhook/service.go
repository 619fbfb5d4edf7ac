// Package webhook applies payment gateway callbacks to orders, the ledger and
// linked payment methods. Gateways redeliver, reorder and replay events;
// every handler here is safe to run any number of times for the same event.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/domain/order"
	"github.com/hatid/hatid-api/internal/domain/paymentmethod"
	"github.com/hatid/hatid-api/internal/pkg/errorhandler"
	"github.com/hatid/hatid-api/internal/pkg/logger"
	"github.com/hatid/hatid-api/internal/pkg/metrics"
	"github.com/hatid/hatid-api/internal/pkg/money"
	"github.com/hatid/hatid-api/internal/pkg/storage"
)

const (
	DefaultOrderGrace = 10 * time.Minute
	DefaultDedupTTL   = 72 * time.Hour
)

// SeenCache is a fast-path record of events already settled.
type SeenCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

type noSeen struct{}

func (noSeen) Seen(context.Context, string) (bool, error) { return false, nil }
func (noSeen) Mark(context.Context, string, time.Duration) error { return nil }

type Service struct {
	store       Store
	ledger      ledger.Reader
	methods     paymentmethod.Store
	seen        SeenCache
	archive     storage.Archive
	broadcaster *ledger.Broadcaster
	orderGrace  time.Duration
	dedupTTL    time.Duration
	now         func() time.Time
}

type Option func(*Service)

func WithSeenCache(c SeenCache) Option {
	return func(s *Service) {
		if c != nil {
			s.seen = c
		}
	}
}
func WithArchive(a storage.Archive) Option { return func(s *Service) { s.archive = a } }
func WithBroadcaster(b *ledger.Broadcaster) Option { return func(s *Service) { s.broadcaster = b } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithDedupTTL(ttl time.Duration) Option { return func(s *Service) { s.dedupTTL = ttl } }

// WithOrderGrace sets how long a payment for an unknown order is retried.
func WithOrderGrace(d time.Duration) Option { return func(s *Service) { s.orderGrace = d } }

func NewService(store Store, ledgerReader ledger.Reader, methods paymentmethod.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		ledger:     ledgerReader,
		methods:    methods,
		seen:       noSeen{},
		archive:    storage.Discard{},
		orderGrace: DefaultOrderGrace,
		dedupTTL:   DefaultDedupTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch routes ev to its handler and classifies the result. A non-nil
// error is returned only with OutcomeRetry.
func (s *Service) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = s.now()
	}
	log := logger.FromContext(ctx).With().
		Str("event_type", string(ev.Type)).
		Str("external_id", ev.ExternalID).
		Logger()
	ctx = logger.WithContext(ctx, &log)

	if ev.Type == "" || ev.ExternalID == "" {
		return s.settle(ctx, ev, fmt.Errorf("%w: missing event identity", ErrMalformedEvent)), nil
	}

	if hit, err := s.seen.Seen(ctx, ev.Key()); err != nil {
		log.Warn().Err(err).Msg("webhook seen-cache lookup failed")
	} else if hit {
		log.Info().Msg("webhook event already processed (cache)")
		metrics.RecordWebhookEvent(string(ev.Type), string(OutcomeDuplicate))
		return OutcomeDuplicate, nil
	}

	var err error
	switch ev.Type {
	case EventPaymentSucceeded:
		err = s.HandlePaymentSuccess(ctx, ev)
	case EventRefundSucceeded:
		err = s.HandleRefundSuccess(ctx, ev)
	case EventGcashLinked:
		err = s.HandleGcashLinking(ctx, ev)
	case EventBankLinked:
		err = s.HandleBankLinking(ctx, ev)
	default:
		log.Info().Msg("unhandled webhook event type acknowledged")
		metrics.RecordWebhookEvent(string(ev.Type), string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}

	outcome := s.settle(ctx, ev, err)
	if outcome == OutcomeRetry {
		return outcome, err
	}
	return outcome, nil
}

// HandlePaymentSuccess marks the referenced order paid and records the charge.
func (s *Service) HandlePaymentSuccess(ctx context.Context, ev Event) error {
	var p paymentPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if !succeeded(p.Status) {
		return fmt.Errorf("%w: status %s", ErrNotSucceeded, p.Status)
	}
	chargeID := p.ID
	if chargeID == "" {
		chargeID = ev.ExternalID
	}
	orderID := p.orderID()
	if orderID == "" {
		return fmt.Errorf("%w: payment without order reference", ErrMalformedEvent)
	}
	if !money.SameCurrency(p.Currency) {
		return fmt.Errorf("%w: unsupported currency %s", ErrMalformedEvent, p.Currency)
	}

	if dup, err := s.recorded(ctx, ledger.KindPaymentRecorded, chargeID); err != nil || dup {
		return err
	}

	entry := &ledger.Entry{Kind: ledger.KindPaymentRecorded, Amount: p.amount(), RelatedExternalID: &chargeID}
	o, err := s.store.ApplyToOrder(ctx, order.ByID(orderID), entry, func(o *order.Order) error {
		return o.MarkPaid(chargeID, s.now())
	})
	if errors.Is(err, ledger.ErrDuplicateEntry) {
		return ErrDuplicateEvent
	}
	if err != nil {
		return err
	}

	s.broadcaster.Recorded(ctx, entry)
	logger.FromContext(ctx).Info().
		Str("order_id", o.ID).
		Str("charge_id", chargeID).
		Str("amount", money.Format(entry.Amount)).
		Msg("order payment recorded")
	return nil
}

// HandleRefundSuccess marks the order owning the refunded charge as refunded.
func (s *Service) HandleRefundSuccess(ctx context.Context, ev Event) error {
	var p refundPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if !succeeded(p.Status) {
		return fmt.Errorf("%w: status %s", ErrNotSucceeded, p.Status)
	}
	refundID := p.ID
	if refundID == "" {
		refundID = ev.ExternalID
	}
	chargeID := p.chargeID()
	if chargeID == "" {
		return fmt.Errorf("%w: refund without charge id", ErrMalformedEvent)
	}
	if !p.Amount.Valid || !money.IsPositive(p.Amount.Decimal) {
		return fmt.Errorf("%w: refund amount must be positive", ErrMalformedEvent)
	}
	if !money.SameCurrency(p.Currency) {
		return fmt.Errorf("%w: unsupported currency %s", ErrMalformedEvent, p.Currency)
	}

	if dup, err := s.recorded(ctx, ledger.KindRefundRecorded, refundID); err != nil || dup {
		return err
	}

	amount := p.Amount.Decimal
	entry := &ledger.Entry{Kind: ledger.KindRefundRecorded, Amount: amount, RelatedExternalID: &refundID}
	o, err := s.store.ApplyToOrder(ctx, order.ByChargeID(chargeID), entry, func(o *order.Order) error {
		o.MarkRefunded(amount, s.now())
		return nil
	})
	switch {
	case errors.Is(err, ledger.ErrDuplicateEntry):
		return ErrDuplicateEvent
	case errors.Is(err, order.ErrOrderNotFound):
		return fmt.Errorf("%w: charge %s", ErrUnmatchedRefund, chargeID)
	case err != nil:
		return err
	}

	s.broadcaster.Recorded(ctx, entry)
	logger.FromContext(ctx).Info().
		Str("order_id", o.ID).
		Str("charge_id", chargeID).
		Str("refund_id", refundID).
		Str("amount", money.Format(amount)).
		Msg("order refund recorded")
	return nil
}

// HandleGcashLinking stores a linked GCash account token.
func (s *Service) HandleGcashLinking(ctx context.Context, ev Event) error {
	return s.link(ctx, ev, paymentmethod.TypeGcash)
}

// HandleBankLinking stores a linked bank account token.
func (s *Service) HandleBankLinking(ctx context.Context, ev Event) error {
	return s.link(ctx, ev, paymentmethod.TypeBank)
}

func (s *Service) link(ctx context.Context, ev Event, typ paymentmethod.Type) error {
	var p linkingPayload
	if err := decode(ev.Payload, &p); err != nil {
		return err
	}
	if !succeeded(p.Status) {
		return fmt.Errorf("%w: status %s", ErrNotSucceeded, p.Status)
	}
	tokenID := p.tokenID()
	if tokenID == "" {
		tokenID = ev.ExternalID
	}
	userID := p.userID()
	if userID == "" {
		return fmt.Errorf("%w: linking without user reference", ErrMalformedEvent)
	}

	created, err := s.methods.Link(ctx, &paymentmethod.PaymentMethod{
		UserID:       userID,
		Type:         typ,
		TokenID:      tokenID,
		ChannelCode:  p.ChannelCode,
		AccountLabel: p.AccountDetails,
	})
	if errors.Is(err, paymentmethod.ErrInvalidMethod) {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err != nil {
		return err
	}
	if !created {
		return ErrDuplicateEvent
	}

	logger.FromContext(ctx).Info().
		Str("user_id", userID).
		Str("method_type", string(typ)).
		Str("token_id", tokenID).
		Msg("payment method linked")
	return nil
}

// recorded is the fast-path dedup check. The conditional insert inside the
// store transaction remains the authority, so lookup failures fall through.
func (s *Service) recorded(ctx context.Context, kind ledger.Kind, externalID string) (bool, error) {
	exists, err := s.ledger.Exists(ctx, kind, externalID)
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("ledger dedup lookup failed, relying on conditional insert")
		return false, nil
	}
	if exists {
		return true, ErrDuplicateEvent
	}
	return false, nil
}

func (s *Service) settle(ctx context.Context, ev Event, err error) Outcome {
	outcome := s.classify(ev, err)
	log := logger.FromContext(ctx)

	switch outcome {
	case OutcomeProcessed:
		s.markSeen(ctx, ev)
	case OutcomeDuplicate:
		log.Info().Msg("webhook event already processed")
		s.markSeen(ctx, ev)
	case OutcomeIgnored:
		log.Info().Err(err).Msg("webhook event needs no action")
	case OutcomeRejected:
		log.Warn().Err(err).Msg("webhook event rejected, manual reconciliation required")
		s.archiveRejected(ctx, ev, err)
	case OutcomeRetry:
		log.Error().Err(err).Msg("webhook event failed, gateway will retry")
	}

	metrics.RecordWebhookEvent(string(ev.Type), string(outcome))
	return outcome
}

func (s *Service) classify(ev Event, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeProcessed
	case errors.Is(err, ErrDuplicateEvent), errors.Is(err, ledger.ErrDuplicateEntry):
		return OutcomeDuplicate
	case errors.Is(err, ErrNotSucceeded):
		return OutcomeIgnored
	case errors.Is(err, ErrMalformedEvent), errors.Is(err, ErrUnmatchedRefund),
		errors.Is(err, order.ErrChargeConflict), errors.Is(err, ledger.ErrInvalidEntry):
		return OutcomeRejected
	case errors.Is(err, order.ErrOrderNotFound):
		// The order may not be committed yet when the gateway is fast.
		if s.withinOrderGrace(ev) {
			return OutcomeRetry
		}
		return OutcomeRejected
	default:
		return OutcomeRetry
	}
}

func (s *Service) withinOrderGrace(ev Event) bool {
	origin := ev.Created
	if origin.IsZero() {
		origin = ev.ReceivedAt
	}
	return s.now().Sub(origin) < s.orderGrace
}

func (s *Service) markSeen(ctx context.Context, ev Event) {
	if err := s.seen.Mark(ctx, ev.Key(), s.dedupTTL); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("webhook seen-cache write failed")
	}
}

type rejectedRecord struct {
	EventType  EventType       `json:"event_type"`
	ExternalID string          `json:"external_id"`
	Reason     string          `json:"reason"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Raw        string          `json:"raw,omitempty"`
}

func (s *Service) archiveRejected(ctx context.Context, ev Event, reason error) {
	rec := rejectedRecord{EventType: ev.Type, ExternalID: ev.ExternalID, ReceivedAt: ev.ReceivedAt}
	if reason != nil {
		rec.Reason = reason.Error()
	}
	if json.Valid(ev.Payload) {
		rec.Payload = ev.Payload
	} else {
		rec.Raw = string(ev.Payload)
	}
	s.putArchive(ctx, storage.RejectedKey(string(ev.Type), ev.ExternalID, ev.ReceivedAt), rec)
}

// RejectUnparseable acknowledges a body that could not be decoded at all.
func (s *Service) RejectUnparseable(ctx context.Context, body []byte, reason error) {
	now := s.now()
	logger.FromContext(ctx).Warn().Err(reason).
		Int("body_bytes", len(body)).
		Str("body", errorhandler.Truncate(string(body), 512)).
		Msg("unparseable webhook body acknowledged, manual reconciliation required")
	metrics.RecordWebhookEvent("unparseable", string(OutcomeRejected))

	rec := rejectedRecord{Reason: reason.Error(), ReceivedAt: now, Raw: string(body)}
	s.putArchive(ctx, storage.RejectedKey("", "", now), rec)
}

func (s *Service) putArchive(ctx context.Context, key string, rec rejectedRecord) {
	body, err := json.Marshal(rec)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("marshal rejected webhook")
		return
	}
	if err := s.archive.Put(ctx, key, body); err != nil {
		errorhandler.LogExternalServiceError(ctx, "archive", "put "+key, err)
	}
}
