package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloodlink_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bloodlink_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	offersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bloodlink_offers_sent_total",
			Help: "Blood request offers sent to donors",
		},
	)

	offerResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloodlink_offer_responses_total",
			Help: "Donor responses to offers by response",
		},
		[]string{"response"},
	)

	requestTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloodlink_request_transitions_total",
			Help: "Blood request status transitions",
		},
		[]string{"from", "to"},
	)

	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloodlink_notifications_created_total",
			Help: "Notifications persisted by type",
		},
		[]string{"type"},
	)

	notificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloodlink_notification_failures_total",
			Help: "Notification side effects that failed, by stage",
		},
		[]string{"stage"},
	)

	remindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bloodlink_reminders_sent_total",
			Help: "Appointment reminders recorded",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bloodlink_idempotency_hits_total",
			Help: "Requests served from idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bloodlink_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
	)

	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bloodlink_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bloodlink_db_connections_active",
			Help: "Acquired database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordOfferSent() {
	offersSent.Inc()
}

func RecordOfferResponse(response string) {
	offerResponses.WithLabelValues(response).Inc()
}

func RecordTransition(from, to string) {
	requestTransitions.WithLabelValues(from, to).Inc()
}

func RecordNotificationCreated(kind string) {
	notificationsCreated.WithLabelValues(kind).Inc()
}

// RecordNotificationFailure counts a failed side effect; stage is one of
// persist, amend, event, sms.
func RecordNotificationFailure(stage string) {
	notificationFailures.WithLabelValues(stage).Inc()
}

func RecordReminderSent() {
	remindersSent.Inc()
}

func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

func SetCircuitBreakerState(name string, state int) {
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func SetDBConnections(count int32) {
	dbConnectionsActive.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics labelled by the matched chi route
// pattern, so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, RoutePattern(r), wrapped.status, time.Since(start))
	})
}

// RoutePattern returns the matched chi route pattern, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
