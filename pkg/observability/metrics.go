package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry
	otel     *OTelMetrics

	// Lifecycle metrics
	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	PolicyDenialsTotal *prometheus.CounterVec

	// Notification metrics
	NotificationsEnqueuedTotal  *prometheus.CounterVec
	NotificationsDeliveredTotal *prometheus.CounterVec

	// Invitation metrics
	InvitationsTotal *prometheus.CounterVec

	// Audit metrics
	AuditErrorsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,

		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_transitions_total",
				Help: "Total number of user transitions by audit action and outcome",
			},
			[]string{"action", "outcome"},
		),
		TransitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_transition_duration_seconds",
				Help:    "User transition duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PolicyDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_policy_denials_total",
				Help: "Total number of denied authorization checks",
			},
			[]string{"kind", "action"},
		),

		NotificationsEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_notifications_enqueued_total",
				Help: "Total number of notifications enqueued",
			},
			[]string{"event_type"},
		),
		NotificationsDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_notifications_delivered_total",
				Help: "Total number of notification deliveries by channel and status",
			},
			[]string{"channel", "status"},
		),

		InvitationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_invitations_total",
				Help: "Total number of invitation operations by outcome",
			},
			[]string{"operation", "outcome"},
		),

		AuditErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_audit_errors_total",
				Help: "Total number of audit entries a sink failed to record",
			},
			[]string{"sink"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.TransitionsTotal,
			m.TransitionDuration,
			m.PolicyDenialsTotal,
			m.NotificationsEnqueuedTotal,
			m.NotificationsDeliveredTotal,
			m.InvitationsTotal,
			m.AuditErrorsTotal,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
		)
	}

	return m
}

// Handler returns the HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WithOTel mirrors selected metrics to OpenTelemetry instruments
func (m *Metrics) WithOTel(o *OTelMetrics) *Metrics {
	if m != nil {
		m.otel = o
	}
	return m
}

// ObserveTransition records a finished user transition
func (m *Metrics) ObserveTransition(operation, action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.otel.recordTransition(context.Background(), action, outcome, d)
}

// ObservePolicyDenial records a denied authorization check
func (m *Metrics) ObservePolicyDenial(kind, action string) {
	if m == nil {
		return
	}
	m.PolicyDenialsTotal.WithLabelValues(kind, action).Inc()
}

// ObserveNotificationEnqueued records a notification handed to the queue
func (m *Metrics) ObserveNotificationEnqueued(eventType string) {
	if m == nil {
		return
	}
	m.NotificationsEnqueuedTotal.WithLabelValues(eventType).Inc()
}

// ObserveNotificationDelivered records a delivery attempt on a channel
func (m *Metrics) ObserveNotificationDelivered(channel string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.NotificationsDeliveredTotal.WithLabelValues(channel, status).Inc()
	m.otel.recordDelivery(context.Background(), channel, status)
}

// ObserveInvitation records an invitation operation
func (m *Metrics) ObserveInvitation(operation, outcome string) {
	if m == nil {
		return
	}
	m.InvitationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveAuditError records a sink failure
func (m *Metrics) ObserveAuditError(sink string) {
	if m == nil {
		return
	}
	m.AuditErrorsTotal.WithLabelValues(sink).Inc()
}

// ObserveCache records a cache lookup
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}
