package fee

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hatid/hatid-api/internal/domain/wallet"
	"github.com/hatid/hatid-api/internal/middleware"
	"github.com/hatid/hatid-api/internal/pkg/errorhandler"
	"github.com/hatid/hatid-api/internal/pkg/money"
	"github.com/hatid/hatid-api/internal/pkg/response"
	"github.com/hatid/hatid-api/internal/pkg/validator"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type holdRequest struct {
	Amount      string `json:"amount" validate:"required,php_amount"`
	HoldMinutes int    `json:"hold_minutes" validate:"gte=0,lte=1440"`
}

type holdResponse struct {
	NewBalance string    `json:"new_balance"`
	HeldAmount string    `json:"held_amount"`
	TotalHeld  string    `json:"total_held"`
	HoldUntil  time.Time `json:"hold_until"`
}

type releaseResponse struct {
	NewBalance     string `json:"new_balance"`
	ReleasedAmount string `json:"released_amount"`
}

type collectResponse struct {
	NewBalance      string `json:"new_balance"`
	CollectedAmount string `json:"collected_amount"`
}

// Hold handles POST /fees/hold
func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req holdRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		if _, bad := errs["amount"]; bad {
			response.ErrorWithDetails(w, http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a positive PHP amount", errs)
			return
		}
		errorhandler.HandleValidation(r.Context(), w, errs)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", wallet.ErrInvalidAmount, err))
		return
	}

	res, err := h.svc.DeductAndHold(r.Context(), userID, amount, wallet.Role(middleware.GetRole(r.Context())), req.HoldMinutes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, holdResponse{
		NewBalance: money.Format(res.NewBalance),
		HeldAmount: money.Format(res.HeldAmount),
		TotalHeld:  money.Format(res.TotalHeld),
		HoldUntil:  res.HoldUntil,
	})
}

// Release handles POST /fees/release
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	res, err := h.svc.ReleaseHold(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, releaseResponse{
		NewBalance:     money.Format(res.NewBalance),
		ReleasedAmount: money.Format(res.ReleasedAmount),
	})
}

// Collect handles POST /fees/collect
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	res, err := h.svc.CollectHeldAmount(r.Context(), userID, wallet.Role(middleware.GetRole(r.Context())))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, collectResponse{
		NewBalance:      money.Format(res.NewBalance),
		CollectedAmount: money.Format(res.CollectedAmount),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrInvalidRole) {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "INVALID_ROLE", "Fees apply to merchant and rider accounts only", err)
		return
	}
	wallet.WriteError(w, r, err)
}

// Routes mounts the fee endpoints. holdGuard runs before a hold is placed.
func (h *Handler) Routes(authMiddleware, holdGuard func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireWalletRole())
	r.With(holdGuard).Post("/hold", h.Hold)
	r.Post("/release", h.Release)
	r.Post("/collect", h.Collect)
	return r
}

