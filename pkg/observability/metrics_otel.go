package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments. A nil *OTelMetrics records nothing.
type OTelMetrics struct {
	transitions        metric.Int64Counter
	transitionDuration metric.Float64Histogram
	deliveries         metric.Int64Counter
}

// NewOTelMetrics creates instruments on the given meter
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.transitions, err = meter.Int64Counter(
		"warden.transitions",
		metric.WithDescription("Total number of user transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}

	m.transitionDuration, err = meter.Float64Histogram(
		"warden.transition.duration",
		metric.WithDescription("User transition duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transition duration histogram: %w", err)
	}

	m.deliveries, err = meter.Int64Counter(
		"warden.notifications.delivered",
		metric.WithDescription("Total number of notification deliveries"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deliveries counter: %w", err)
	}

	return m, nil
}

func (m *OTelMetrics) recordTransition(ctx context.Context, action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)
	m.transitions.Add(ctx, 1, attrs)
	m.transitionDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *OTelMetrics) recordDelivery(ctx context.Context, channel, status string) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	))
}
