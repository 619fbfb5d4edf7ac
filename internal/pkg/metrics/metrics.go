// Package metrics exposes Prometheus collectors for the API.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	feeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fee_operations_total",
			Help: "Fee hold engine operations by outcome",
		},
		[]string{"operation", "result"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Gateway webhook events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	websocketConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections",
		Help: "Open wallet websocket connections on this instance",
	})

	websocketEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_total",
			Help: "Wallet websocket events by delivery result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		feeOperationsTotal,
		webhookEventsTotal,
		websocketConnections,
		websocketEventsTotal,
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFeeOperation counts a fee engine call. result is "ok" or an error code.
func RecordFeeOperation(operation, result string) {
	feeOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordWebhookEvent counts a dispatched webhook event.
func RecordWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// WebsocketConnected adjusts the open connection gauge by delta.
func WebsocketConnected(delta int) {
	websocketConnections.Add(float64(delta))
}

// RecordWebsocketEvent counts a push to a local connection; result is "sent" or "dropped".
func RecordWebsocketEvent(result string) {
	websocketEventsTotal.WithLabelValues(result).Inc()
}
