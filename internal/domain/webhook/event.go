package webhook

import (
	"encoding/json"
	"time"
)

// EventType names a gateway event.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventRefundSucceeded  EventType = "refund.succeeded"
	EventGcashLinked      EventType = "gcash.linking.succeeded"
	EventBankLinked       EventType = "bank.linking.succeeded"
)

// Event is a normalized inbound gateway event. (Type, ExternalID) identifies it.
type Event struct {
	Type       EventType
	ExternalID string
	Payload    json.RawMessage
	Created    time.Time
	ReceivedAt time.Time
}

// Key identifies the event across deliveries.
func (e Event) Key() string {
	return string(e.Type) + ":" + e.ExternalID
}

// Outcome is how an event was settled.
type Outcome string

const (
	// OutcomeProcessed means the event changed state.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate means the event was applied by an earlier delivery.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the event type or status needs no action.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeRejected means the event can never be applied; it is archived for reconciliation.
	OutcomeRejected Outcome = "rejected"
	// OutcomeRetry means a transient failure; the gateway should redeliver.
	OutcomeRetry Outcome = "retry"
)

// Acknowledge reports whether the gateway should be told to stop redelivering.
func (o Outcome) Acknowledge() bool {
	return o != OutcomeRetry
}
