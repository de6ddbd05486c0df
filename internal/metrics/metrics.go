package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the API and worker.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SubscriptionTransitions *prometheus.CounterVec
	SeatOperations          *prometheus.CounterVec
	InvitationTransitions   *prometheus.CounterVec
	WebhookEvents           *prometheus.CounterVec
	AnalysesSaved           prometheus.Counter
	ReportExports           *prometheus.CounterVec
	SweepRows               *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		SubscriptionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_subscription_transitions_total",
				Help: "Subscription status changes",
			},
			[]string{"from", "to"},
		),
		SeatOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_seat_operations_total",
				Help: "Seat ledger operations by outcome",
			},
			[]string{"operation", "result"},
		),
		InvitationTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_invitation_transitions_total",
				Help: "Team invitation status changes",
			},
			[]string{"to"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_payment_webhook_events_total",
				Help: "Payment webhook events received",
			},
			[]string{"type", "result"},
		),
		AnalysesSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dealdesk_analyses_saved_total",
				Help: "Saved analyses created",
			},
		),
		ReportExports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_report_exports_total",
				Help: "Report exports by storage provider",
			},
			[]string{"provider"},
		),
		SweepRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_sweep_rows_total",
				Help: "Rows changed by background expiry sweeps",
			},
			[]string{"sweep"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SubscriptionTransitions,
		m.SeatOperations,
		m.InvitationTransitions,
		m.WebhookEvents,
		m.AnalysesSaved,
		m.ReportExports,
		m.SweepRows,
	)

	return m
}

func (m *Metrics) Subscription(from, to string) {
	if m == nil || from == to {
		return
	}
	m.SubscriptionTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Seat(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.SeatOperations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Invitation(to string) {
	if m == nil {
		return
	}
	m.InvitationTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) Webhook(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) AnalysisSaved() {
	if m == nil {
		return
	}
	m.AnalysesSaved.Inc()
}

func (m *Metrics) ReportExported(provider string) {
	if m == nil {
		return
	}
	m.ReportExports.WithLabelValues(provider).Inc()
}

func (m *Metrics) Swept(sweep string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	m.SweepRows.WithLabelValues(sweep).Add(float64(rows))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
