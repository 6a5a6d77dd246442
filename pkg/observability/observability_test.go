package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := NewLogger("debug", FormatJSON, &buf)
		require.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, log.GetLevel())

		log.WithField("user_id", 7).Info("hello")
		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "hello", line["msg"])
		assert.Equal(t, float64(7), line["user_id"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := NewLogger("warn", FormatText, &buf)
		require.NoError(t, err)
		log.Info("dropped")
		assert.Empty(t, buf.String())
		log.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewLogger("loud", FormatJSON, nil)
		assert.Error(t, err)
		_, err = NewLogger("info", "xml", nil)
		assert.Error(t, err)
	})
}

func TestWithTrace(t *testing.T) {
	log := logrus.New()

	entry := WithTrace(context.Background(), log)
	assert.NotContains(t, entry.Data, "trace_id")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	entry = WithTrace(ctx, log)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry.Data["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry.Data["span_id"])
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveTransition("perform_transition", "status_change", "success", 10*time.Millisecond)
	m.ObserveTransition("perform_transition", "status_change", "success", 10*time.Millisecond)
	m.ObservePolicyDenial("user", "manage_status")
	m.ObserveNotificationEnqueued("status_changed")
	m.ObserveNotificationDelivered("email", errors.New("smtp down"))
	m.ObserveInvitation("accept", "expired")
	m.ObserveAuditError("sql")
	m.ObserveCache("users", true)
	m.ObserveCache("users", false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("status_change", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PolicyDenialsTotal.WithLabelValues("user", "manage_status")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsEnqueuedTotal.WithLabelValues("status_changed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsDeliveredTotal.WithLabelValues("email", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InvitationsTotal.WithLabelValues("accept", "expired")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditErrorsTotal.WithLabelValues("sql")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("users")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("users")))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "warden_transitions_total")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransition("op", "a", "b", time.Second)
		m.ObservePolicyDenial("k", "a")
		m.ObserveNotificationEnqueued("e")
		m.ObserveNotificationDelivered("email", nil)
		m.ObserveInvitation("accept", "success")
		m.ObserveAuditError("sql")
		m.ObserveCache("users", true)
		_ = m.WithOTel(nil)
	})
	assert.NotNil(t, m.Handler())
}

func TestOTelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	om, err := NewOTelMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m := NewMetrics(prometheus.NewRegistry()).WithOTel(om)
	m.ObserveTransition("perform_transition", "role_change", "success", time.Millisecond)
	m.ObserveNotificationDelivered("in_app", nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
		}
	}
	assert.True(t, names["warden.transitions"])
	assert.True(t, names["warden.transition.duration"])
	assert.True(t, names["warden.notifications.delivered"])
}

func TestInitOTelDisabled(t *testing.T) {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, log)
	assert.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestHealthChecker(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()

		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		checker := NewHealthChecker(db, client, "test")
		rr := httptest.NewRecorder()
		checker.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var status HealthStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, "test", status.Version)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
	})

	t.Run("database down", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection failed"))

		checker := NewHealthChecker(db, nil, "")
		rr := httptest.NewRecorder()
		checker.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("redis down degrades", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer client.Close()
		mr.Close()

		status := NewHealthChecker(nil, client, "").Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})
}
