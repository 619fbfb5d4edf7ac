package fee_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hatid/hatid-api/internal/domain/fee"
	"github.com/hatid/hatid-api/internal/middleware"
	"github.com/hatid/hatid-api/internal/pkg/response"
)

func postHold(t *testing.T, h *fee.Handler, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/fees/hold", strings.NewReader(body))
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, "merchant-1")
	ctx = context.WithValue(ctx, middleware.RoleKey, "merchant")
	rec := httptest.NewRecorder()
	h.Hold(rec, req.WithContext(ctx))

	var env response.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestHoldHandlerRejectsBadAmounts(t *testing.T) {
	svc, store, _ := setup(t, map[string]string{"merchant-1": "500"})
	h := fee.NewHandler(svc)

	for _, amount := range []string{"0", "-5", "1.005", "abc", " "} {
		t.Run(amount, func(t *testing.T) {
			rec, env := postHold(t, h, `{"amount":"`+amount+`"}`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if env.Error == nil || env.Error.Code != "INVALID_AMOUNT" {
				t.Fatalf("expected INVALID_AMOUNT, got %+v", env.Error)
			}
		})
	}

	if n := len(store.Entries()); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}
}

func TestHoldHandlerPlacesHold(t *testing.T) {
	svc, _, _ := setup(t, map[string]string{"merchant-1": "500"})

	rec, env := postHold(t, fee.NewHandler(svc), `{"amount":"12.50","hold_minutes":15}`)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data, _ := json.Marshal(env.Data)
	if !strings.Contains(string(data), `"new_balance":"487.50"`) {
		t.Fatalf("unexpected body %s", data)
	}
}
