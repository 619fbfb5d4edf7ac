package middleware

import (
	"net/http"
	"time"
)

// Timeout answers 503 when the handler runs longer than timeout.
// Do not mount it in front of websocket upgrades; the wrapper cannot be hijacked.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, "Request timeout")
	}
}
