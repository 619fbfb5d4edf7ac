// Package xendit decodes and authenticates Xendit callbacks.
package xendit

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// CallbackTokenHeader carries the verification token configured in the Xendit dashboard.
const CallbackTokenHeader = "X-Callback-Token"

var ErrMalformedCallback = errors.New("malformed callback")

// VerifyCallbackToken compares the received token to the configured one in constant time.
func VerifyCallbackToken(expected, received string) bool {
	if expected == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// Xendit event names mapped onto the event types the wallet understands.
var eventAliases = map[string]string{
	"ewallet.capture": "payment.succeeded",
	"ewallet.refund":  "refund.succeeded",
}

// Callback is a decoded callback in either accepted shape.
type Callback struct {
	Type       string
	ExternalID string
	Created    time.Time
	Payload    json.RawMessage
}

type envelope struct {
	// Xendit shape
	Event   string          `json:"event"`
	Created string          `json:"created"`
	Data    json.RawMessage `json:"data"`

	// normalized shape
	EventType  string          `json:"event_type"`
	ExternalID string          `json:"external_id"`
	Payload    json.RawMessage `json:"payload"`
}

// ParseCallback decodes raw into a Callback, mapping Xendit event names.
func ParseCallback(raw []byte) (*Callback, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Join(ErrMalformedCallback, err)
	}

	cb := &Callback{}
	switch {
	case env.Event != "":
		cb.Type = env.Event
		cb.Payload = env.Data
		cb.ExternalID = dataID(env.Data)
		if env.Created != "" {
			if t, err := time.Parse(time.RFC3339, env.Created); err == nil {
				cb.Created = t
			}
		}
	case env.EventType != "":
		cb.Type = env.EventType
		cb.Payload = env.Payload
		cb.ExternalID = env.ExternalID
		if cb.ExternalID == "" {
			cb.ExternalID = dataID(env.Payload)
		}
	default:
		return nil, errors.Join(ErrMalformedCallback, errors.New("missing event type"))
	}

	if alias, ok := eventAliases[strings.ToLower(cb.Type)]; ok {
		cb.Type = alias
	}
	if len(bytes.TrimSpace(cb.Payload)) == 0 || bytes.Equal(bytes.TrimSpace(cb.Payload), []byte("null")) {
		return nil, errors.Join(ErrMalformedCallback, errors.New("missing payload"))
	}
	if cb.Created.IsZero() {
		cb.Created = createdAt(cb.Payload)
	}
	return cb, nil
}

func dataID(raw json.RawMessage) string {
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v.ID
}

func createdAt(raw json.RawMessage) time.Time {
	var v struct {
		Created time.Time `json:"created"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}
	}
	return v.Created
}
