// Package metrics provides Prometheus instrumentation for the economy
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
	// WagersTotal counts settled instant wagers by type and tier.
	WagersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_wagers_total",
		Help: "Total instant wagers settled",
	}, []string{"type", "tier"})

	// ContestJoinsTotal counts accepted pool entries by type.
	ContestJoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_contest_joins_total",
		Help: "Total accepted contest entries",
	}, []string{"type"})

	// DrawsTotal counts settled draws by type and outcome.
	DrawsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_draws_total",
		Help: "Total contest draws settled",
	}, []string{"type", "outcome"})

	// SurpriseEventsTotal counts fired surprise events by kind.
	SurpriseEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_surprise_events_total",
		Help: "Total surprise events fired",
	}, []string{"kind"})

	// CheckinsTotal counts claimed daily check-ins.
	CheckinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_checkins_total",
		Help: "Total daily check-ins claimed",
	})

	// BusyRejections counts requests turned away by the bounded lock wait.
	BusyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "economy_busy_rejections_total",
		Help: "Requests rejected because the user lock was contended",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "economy_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "economy_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
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
