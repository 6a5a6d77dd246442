package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/observability"
)

const recordTimeout = 5 * time.Second

// Named is implemented by sinks that report a short name for logs and metrics
type Named interface {
	Name() string
}

// Recorder fans entries out to sinks. A failing sink is logged and counted
// but never reported to the caller, so auditing cannot fail the operation
// that produced the entry.
type Recorder struct {
	sinks   []Sink
	log     *logrus.Logger
	metrics *observability.Metrics
	group   *async.Group
	async   bool
	now     func() time.Time
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithAsync delivers entries in background goroutines. Call Wait to drain.
func WithAsync() RecorderOption {
	return func(r *Recorder) { r.async = true }
}

// WithMetrics counts sink failures
func WithMetrics(m *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder writing to sinks
func NewRecorder(log *logrus.Logger, sinks []Sink, opts ...RecorderOption) *Recorder {
	if log == nil {
		log = logrus.New()
	}
	r := &Recorder{
		sinks: sinks,
		log:   log,
		group: async.NewGroup(log),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stamps the entry and hands it to every sink
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}

	for _, sink := range r.sinks {
		sink := sink
		e := entry
		if r.async {
			r.group.Go(ctx, recordTimeout, "audit record", func(ctx context.Context) error {
				r.deliver(ctx, sink, &e)
				return nil
			})
			continue
		}
		r.deliver(ctx, sink, &e)
	}
}

// Wait blocks until asynchronous deliveries finish
func (r *Recorder) Wait() {
	r.group.Wait()
}

func (r *Recorder) deliver(ctx context.Context, sink Sink, entry *Entry) {
	err := async.Run(ctx, recordTimeout, "audit record", func(ctx context.Context) error {
		return sink.Record(ctx, entry)
	})
	if err == nil {
		return
	}
	name := sinkName(sink)
	r.metrics.ObserveAuditError(name)
	r.log.WithError(err).WithFields(logrus.Fields{
		"sink":       name,
		"action":     entry.Action,
		"request_id": entry.RequestID,
	}).Error("failed to record audit entry")
}

func sinkName(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
