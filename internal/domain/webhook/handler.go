package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hatid/hatid-api/internal/pkg/logger"
	"github.com/hatid/hatid-api/internal/pkg/response"
	"github.com/hatid/hatid-api/internal/pkg/xendit"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	svc           *Service
	callbackToken string
}

// NewHandler creates the gateway callback handler. An empty callbackToken
// disables verification; configuration refuses that in production.
func NewHandler(svc *Service, callbackToken string) *Handler {
	return &Handler{svc: svc, callbackToken: callbackToken}
}

type ackResponse struct {
	Status Outcome `json:"status"`
}

// Xendit handles POST /webhooks/xendit
func (h *Handler) Xendit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.callbackToken != "" && !xendit.VerifyCallbackToken(h.callbackToken, r.Header.Get(xendit.CallbackTokenHeader)) {
		logger.FromContext(ctx).Warn().Str("remote_addr", r.RemoteAddr).Msg("webhook callback token mismatch")
		response.Unauthorized(w, "invalid callback token")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		response.BadRequest(w, "failed to read body")
		return
	}
	if len(body) > maxWebhookBody {
		response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "webhook body exceeds 1MB")
		return
	}

	cb, err := xendit.ParseCallback(body)
	if err != nil {
		// Redelivering an undecodable body cannot succeed.
		h.svc.RejectUnparseable(ctx, body, errors.Join(ErrMalformedEvent, err))
		response.OK(w, ackResponse{Status: OutcomeRejected})
		return
	}

	outcome, err := h.svc.Dispatch(ctx, Event{
		Type:       EventType(cb.Type),
		ExternalID: cb.ExternalID,
		Payload:    cb.Payload,
		Created:    cb.Created,
	})
	if !outcome.Acknowledge() {
		logger.FromContext(ctx).Error().Err(err).Msg("webhook not acknowledged")
		response.Error(w, http.StatusInternalServerError, "WEBHOOK_RETRY", "event could not be processed, retry later")
		return
	}
	response.OK(w, ackResponse{Status: outcome})
}

// Routes mounts the gateway callback endpoints. They authenticate with the
// callback token, not a user session.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/xendit", h.Xendit)
	return r
}
