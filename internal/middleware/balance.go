package middleware

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/pkg/logger"
	"github.com/hatid/hatid-api/internal/pkg/money"
	"github.com/hatid/hatid-api/internal/pkg/response"
)

// BalanceChecker reads the caller's spendable wallet balance.
type BalanceChecker interface {
	AvailableBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// ErrorWriter writes the response for an error returned by a checker.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireMinimumBalance rejects callers whose balance is below minimum with
// 409 INSUFFICIENT_BALANCE. A non-positive minimum disables the check.
func RequireMinimumBalance(checker BalanceChecker, minimum decimal.Decimal, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !minimum.IsPositive() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == "" {
				response.Unauthorized(w, "unauthorized")
				return
			}

			balance, err := checker.AvailableBalance(r.Context(), userID)
			if err != nil {
				writeErr(w, r, err)
				return
			}
			if balance.LessThan(minimum) {
				logger.FromContext(r.Context()).Info().
					Str("user_id", userID).
					Str("balance", money.Format(balance)).
					Str("minimum", money.Format(minimum)).
					Msg("wallet below operating minimum")
				response.ErrorWithDetails(w, http.StatusConflict, "INSUFFICIENT_BALANCE",
					"Wallet balance is below the required minimum",
					map[string]string{"minimum": money.Format(minimum), "balance": money.Format(balance)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
