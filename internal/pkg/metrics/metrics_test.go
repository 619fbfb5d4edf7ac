package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/orders/{id}", "418"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/42", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/orders/{id}", "418"))

	if after-before != 1 {
		t.Fatalf("expected one request counted under the route pattern, got %v", after-before)
	}
}

func TestRecordWebhookEvent(t *testing.T) {
	c := webhookEventsTotal.WithLabelValues("payment.succeeded", "duplicate")
	before := testutil.ToFloat64(c)
	RecordWebhookEvent("payment.succeeded", "duplicate")
	if testutil.ToFloat64(c)-before != 1 {
		t.Fatal("expected counter to increase by one")
	}
}
