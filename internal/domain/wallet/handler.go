package wallet

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hatid/hatid-api/internal/domain/ledger"
	"github.com/hatid/hatid-api/internal/middleware"
	"github.com/hatid/hatid-api/internal/pkg/codec"
	"github.com/hatid/hatid-api/internal/pkg/database"
	"github.com/hatid/hatid-api/internal/pkg/errorhandler"
	"github.com/hatid/hatid-api/internal/pkg/money"
	"github.com/hatid/hatid-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type holdResponse struct {
	Amount string    `json:"amount"`
	Until  time.Time `json:"until"`
}

type walletResponse struct {
	UserID    string        `json:"user_id"`
	Balance   string        `json:"balance"`
	Currency  string        `json:"currency"`
	Hold      *holdResponse `json:"hold"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type entryResponse struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"`
	Amount            string    `json:"amount"`
	ResultingBalance  *string   `json:"resulting_balance"`
	RelatedExternalID string    `json:"related_external_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func toWalletResponse(w *Wallet) walletResponse {
	resp := walletResponse{
		UserID:    w.UserID,
		Balance:   money.Format(w.Balance),
		Currency:  money.Currency,
		UpdatedAt: w.UpdatedAt,
	}
	if w.HasHold() {
		resp.Hold = &holdResponse{Amount: money.Format(w.Hold.Amount), Until: w.Hold.Until}
	}
	return resp
}

func toEntryResponse(e *ledger.Entry) entryResponse {
	resp := entryResponse{
		ID:                e.ID,
		Kind:              string(e.Kind),
		Amount:            money.Format(e.Amount),
		RelatedExternalID: e.ExternalID(),
		CreatedAt:         e.CreatedAt,
	}
	if e.ResultingBalance.Valid {
		b := money.Format(e.ResultingBalance.Decimal)
		resp.ResultingBalance = &b
	}
	return resp
}

// Get handles GET /wallet
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	wal, err := h.svc.Wallet(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.OK(w, toWalletResponse(wal))
}

// Transactions handles GET /wallet/transactions?limit=&offset=
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	page := ledger.Page{Limit: limit, Offset: offset}.Normalize()

	entries, err := h.svc.History(r.Context(), userID, page)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	items := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryResponse(e))
	}
	response.WithMeta(w, items, response.Meta{
		Limit:   page.Limit,
		Offset:  page.Offset,
		Count:   len(items),
		HasNext: len(items) == page.Limit,
	})
}

// PaymentMethods handles GET /wallet/payment-methods
func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	methods, err := h.svc.PaymentMethods(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	response.OK(w, methods)
}

// WriteError maps wallet-level errors to API responses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, ErrInvalidAmount):
		errorhandler.HandleError(ctx, w, http.StatusBadRequest, "INVALID_AMOUNT",
			"Amount must be a positive PHP amount with at most 2 decimal places", err)
	case errors.Is(err, ErrWalletNotFound):
		errorhandler.HandleError(ctx, w, http.StatusNotFound, "WALLET_NOT_FOUND", "Wallet not found", err)
	case errors.Is(err, ErrInsufficientBalance):
		errorhandler.HandleError(ctx, w, http.StatusConflict, "INSUFFICIENT_BALANCE", "Insufficient wallet balance", err)
	case errors.Is(err, codec.ErrCodec):
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "CODEC_ERROR", "Wallet balance could not be read", err)
	case errors.Is(err, database.ErrPersistence):
		errorhandler.HandleError(ctx, w, http.StatusServiceUnavailable, "PERSISTENCE_FAILURE",
			"Service temporarily unavailable, please retry", err)
	default:
		errorhandler.HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.Get)
	r.Get("/transactions", h.Transactions)
	r.Get("/payment-methods", h.PaymentMethods)
	return r
}
