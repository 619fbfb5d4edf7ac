package errorhandler

import (
	"context"
	"net/http"

	"github.com/hatid/hatid-api/internal/pkg/logger"
	"github.com/hatid/hatid-api/internal/pkg/response"
)

// HandleError logs err with the request id and sends the error envelope.
// Client errors are logged at warn, server errors at error.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	l := logger.FromContext(ctx)
	event := l.Warn()
	if status >= http.StatusInternalServerError {
		event = l.Error()
	}
	if err != nil {
		event = event.Err(err)
	}
	event.
		Str("request_id", logger.RequestID(ctx)).
		Str("error_code", code).
		Int("status_code", status).
		Msg("request error")

	response.Error(w, status, code, message)
}

// HandleValidation logs and sends field validation errors.
func HandleValidation(ctx context.Context, w http.ResponseWriter, fieldErrors map[string]string) {
	logger.FromContext(ctx).Warn().
		Str("request_id", logger.RequestID(ctx)).
		Interface("validation_errors", fieldErrors).
		Msg("validation error")

	response.ValidationError(w, fieldErrors)
}

// LogExternalServiceError records a failed call to a collaborator such as the
// event broker or the archive bucket.
func LogExternalServiceError(ctx context.Context, service, operation string, err error) {
	logger.FromContext(ctx).Error().
		Str("request_id", logger.RequestID(ctx)).
		Str("external_service", service).
		Str("operation", operation).
		Err(err).
		Msg("external service error")
}

// Truncate shortens s for logging.
func Truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "...<truncated>"
	}
	return s
}
