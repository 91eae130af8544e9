// Package metrics provides Prometheus instrumentation for the settlement
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SettlementsTotal counts completed settlements, partitioned by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fightbook_settlements_total",
		Help: "Total number of fights settled",
	}, []string{"outcome"})

	// SettlementFailures counts rejected or aborted settlement attempts.
	SettlementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fightbook_settlement_failures_total",
		Help: "Settlement attempts that were rejected or rolled back",
	}, []string{"reason"})

	// SettledPositionsTotal counts positions resolved across all settlements.
	SettledPositionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fightbook_settled_positions_total",
		Help: "Total positions resolved by settlement",
	})

	// CancelledOrdersTotal counts orders bulk-cancelled by settlement.
	CancelledOrdersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fightbook_cancelled_orders_total",
		Help: "Resting orders cancelled during settlement",
	})

	// PayoutCentsTotal accumulates net credits paid out, in cents.
	PayoutCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fightbook_payout_cents_total",
		Help: "Net settlement payouts credited to users, in cents",
	})

	// FeeCentsTotal accumulates platform fees charged, in cents.
	FeeCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fightbook_fee_cents_total",
		Help: "Platform fees charged on settlement profits, in cents",
	})

	// SettlementLatency tracks end-to-end settlement transaction time.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fightbook_settlement_latency_seconds",
		Help:    "Settlement transaction latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fightbook_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fightbook_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fightbook_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
