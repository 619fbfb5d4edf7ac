package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var successStatuses = map[string]bool{
	"":          true,
	"SUCCEEDED": true,
	"SUCCESS":   true,
	"COMPLETED": true,
	"PAID":      true,
	"ACTIVE":    true,
}

func succeeded(status string) bool {
	return successStatuses[strings.ToUpper(strings.TrimSpace(status))]
}

type eventMetadata struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

type paymentPayload struct {
	ID            string              `json:"id"`
	ReferenceID   string              `json:"reference_id"`
	Status        string              `json:"status"`
	CaptureAmount decimal.NullDecimal `json:"capture_amount"`
	ChargeAmount  decimal.NullDecimal `json:"charge_amount"`
	Amount        decimal.NullDecimal `json:"amount"`
	Currency      string              `json:"currency"`
	Metadata      eventMetadata       `json:"metadata"`
}

// orderID prefers metadata.order_id, then reference_id with an optional "order_" prefix.
func (p paymentPayload) orderID() string {
	if p.Metadata.OrderID != "" {
		return p.Metadata.OrderID
	}
	return strings.TrimPrefix(p.ReferenceID, "order_")
}

func (p paymentPayload) amount() decimal.Decimal {
	for _, a := range []decimal.NullDecimal{p.CaptureAmount, p.ChargeAmount, p.Amount} {
		if a.Valid {
			return a.Decimal
		}
	}
	return decimal.Zero
}

type refundPayload struct {
	ID        string              `json:"id"`
	ChargeID  string              `json:"charge_id"`
	PaymentID string              `json:"payment_id"`
	Status    string              `json:"status"`
	Amount    decimal.NullDecimal `json:"amount"`
	Currency  string              `json:"currency"`
}

func (p refundPayload) chargeID() string {
	if p.ChargeID != "" {
		return p.ChargeID
	}
	return p.PaymentID
}

type linkingPayload struct {
	ID             string        `json:"id"`
	TokenID        string        `json:"token_id"`
	CustomerID     string        `json:"customer_id"`
	ReferenceID    string        `json:"reference_id"`
	Status         string        `json:"status"`
	ChannelCode    string        `json:"channel_code"`
	AccountDetails string        `json:"account_details"`
	Metadata       eventMetadata `json:"metadata"`
}

func (p linkingPayload) tokenID() string {
	if p.TokenID != "" {
		return p.TokenID
	}
	return p.ID
}

func (p linkingPayload) userID() string {
	switch {
	case p.Metadata.UserID != "":
		return p.Metadata.UserID
	case p.ReferenceID != "":
		return p.ReferenceID
	default:
		return p.CustomerID
	}
}

func decode(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}
