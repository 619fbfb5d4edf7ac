package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/config"
	"github.com/hatid/hatid-api/internal/domain/order"
	"github.com/hatid/hatid-api/internal/domain/realtime"
	"github.com/hatid/hatid-api/internal/pkg/codec"
	"github.com/hatid/hatid-api/internal/pkg/events"
	"github.com/hatid/hatid-api/internal/pkg/jwt"
	"github.com/hatid/hatid-api/internal/pkg/storage"
	"github.com/hatid/hatid-api/internal/pkg/xendit"
	"github.com/hatid/hatid-api/internal/store/memory"
)

type testAPI struct {
	handler http.Handler
	store   *memory.Store
	jwt     *jwt.Service
}

func newTestAPI(t *testing.T, minBalance string) testAPI {
	t.Helper()
	cfg := &config.Config{
		Server:  config.Server{Env: "test"},
		Storage: config.Storage{Driver: config.DriverMemory},
		Wallet:  config.Wallet{FeeHoldMinutes: 30, MinOperatingBalance: decimal.RequireFromString(minBalance)},
		Webhook: config.Webhook{XenditCallbackToken: "callback-secret", OrderGrace: 10 * time.Minute, DedupTTL: time.Hour},
		Events:  config.Events{LedgerTopic: "wallet.ledger.recorded"},
	}

	store := memory.New(codec.Plain{})
	hub := realtime.NewHubWithInstanceID(nil, "test")
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	jwtSvc := jwt.NewService("test-secret", time.Hour)
	r := newRouter(cfg, memoryStores(store), deps{
		publisher: events.Noop{},
		archive:   storage.Discard{},
		hub:       hub,
		jwt:       jwtSvc,
	})
	return testAPI{handler: r, store: store, jwt: jwtSvc}
}

func (a testAPI) do(t *testing.T, method, path, userID, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := a.jwt.GenerateAccessToken(userID, role)
		if err != nil {
			t.Fatalf("GenerateAccessToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %q: %v", env.Data, err)
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, "0")
	if rec := api.do(t, http.MethodGet, "/health", "", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestFeeLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, "0")
	if err := api.store.SeedWallet("merchant-1", decimal.NewFromInt(500)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := api.do(t, http.MethodPost, "/api/v1/fees/hold", "merchant-1", "merchant", `{"amount":"50.00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("hold: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var hold struct {
		NewBalance string `json:"new_balance"`
		HeldAmount string `json:"held_amount"`
	}
	decodeData(t, rec, &hold)
	if hold.NewBalance != "450.00" || hold.HeldAmount != "50.00" {
		t.Fatalf("unexpected hold %+v", hold)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/fees/collect", "merchant-1", "merchant", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("collect: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/v1/wallet/transactions", "merchant-1", "merchant", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions: expected 200, got %d", rec.Code)
	}
	var entries []map[string]interface{}
	decodeData(t, rec, &entries)
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
}

func TestFeeErrorsOverHTTP(t *testing.T) {
	api := newTestAPI(t, "0")
	if err := api.store.SeedWallet("rider-1", decimal.NewFromInt(20)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name   string
		userID string
		role   string
		body   string
		want   int
	}{
		{"no token", "", "", `{"amount":"10"}`, http.StatusUnauthorized},
		{"customer role", "rider-1", "customer", `{"amount":"10"}`, http.StatusForbidden},
		{"insufficient balance", "rider-1", "rider", `{"amount":"30.00"}`, http.StatusConflict},
		{"bad amount", "rider-1", "rider", `{"amount":"1.234"}`, http.StatusBadRequest},
		{"unknown wallet", "rider-2", "rider", `{"amount":"1"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/v1/fees/hold", tt.userID, tt.role, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMinimumBalanceGuard(t *testing.T) {
	api := newTestAPI(t, "100")
	if err := api.store.SeedWallet("merchant-1", decimal.NewFromInt(80)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := api.do(t, http.MethodPost, "/api/v1/fees/hold", "merchant-1", "merchant", `{"amount":"10"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	w, _ := api.store.Get(t.Context(), "merchant-1")
	if !w.Balance.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("balance changed to %s", w.Balance)
	}
}

func TestWebhookOverHTTP(t *testing.T) {
	api := newTestAPI(t, "0")
	api.store.SeedOrder(&order.Order{
		ID:            "ord-1",
		CustomerID:    "customer-1",
		Status:        order.StatusAwaitingPayment,
		PaymentStatus: order.PaymentUnpaid,
		RefundStatus:  order.RefundNone,
	})
	body := `{"event":"ewallet.capture","data":{"id":"ewc_1","reference_id":"order_ord-1","status":"SUCCEEDED","capture_amount":250}}`

	send := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/xendit", strings.NewReader(body))
		req.Header.Set(xendit.CallbackTokenHeader, token)
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	for i := 0; i < 3; i++ {
		if rec := send("callback-secret"); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	o, _ := api.store.Order("ord-1")
	if o.PaymentStatus != order.PaymentPaid {
		t.Fatalf("expected paid order, got %s", o.PaymentStatus)
	}
	if n := len(api.store.Entries()); n != 1 {
		t.Fatalf("expected one ledger entry, got %d", n)
	}
}
