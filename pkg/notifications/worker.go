package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/async"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Delivery channels
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// Channels selects where a message is delivered
type Channels struct {
	InApp bool
	Email bool
}

// DeliveryPolicy decides the channels for an event type
type DeliveryPolicy func(eventType string) Channels

// emailed events also go out by email
var emailed = map[string]bool{
	EventStatusChange:       true,
	EventRoleChange:         true,
	EventEmailChanged:       true,
	EventEmailChangeDenied:  true,
	EventInvitationAccepted: true,
	EventPlanChanged:        true,
}

// DefaultDeliveryPolicy delivers everything in-app and security relevant
// events by email as well
func DefaultDeliveryPolicy(eventType string) Channels {
	return Channels{InApp: true, Email: emailed[eventType]}
}

const deliverTimeout = 10 * time.Second

// Worker drains the queue, storing in-app notifications and sending email.
// Failed deliveries are logged and counted, never retried.
type Worker struct {
	queue       Queue
	store       *SQLStore
	mailer      Mailer
	policy      DeliveryPolicy
	metrics     *observability.Metrics
	log         *logrus.Logger
	pollTimeout time.Duration
	backoff     time.Duration
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithDeliveryPolicy overrides DefaultDeliveryPolicy
func WithDeliveryPolicy(p DeliveryPolicy) WorkerOption {
	return func(w *Worker) { w.policy = p }
}

// WithWorkerMetrics counts deliveries
func WithWorkerMetrics(m *observability.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithPollTimeout sets how long each dequeue blocks
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollTimeout = d }
}

// NewWorker creates a delivery worker
func NewWorker(queue Queue, store *SQLStore, mailer Mailer, log *logrus.Logger, opts ...WorkerOption) *Worker {
	if log == nil {
		log = logrus.New()
	}
	if mailer == nil {
		mailer = NewLogMailer(log)
	}
	w := &Worker{
		queue:       queue,
		store:       store,
		mailer:      mailer,
		policy:      DefaultDeliveryPolicy,
		log:         log,
		pollTimeout: 5 * time.Second,
		backoff:     time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes messages until ctx is canceled
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("notification worker started")
	defer w.log.Info("notification worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := w.queue.Dequeue(ctx, w.pollTimeout)
		switch {
		case errors.Is(err, ErrQueueEmpty):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			w.log.WithError(err).Error("failed to dequeue notification")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.backoff):
			}
			continue
		}

		if err := w.Process(ctx, msg); err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"message_id": msg.ID,
				"event_type": msg.EventType,
			}).Error("notification delivery failed")
		}
	}
}

// Process delivers one message on every channel its policy selects
func (w *Worker) Process(ctx context.Context, msg *Message) error {
	channels := w.policy(msg.EventType)
	var errs []error

	if channels.InApp && msg.Recipient.UserID != 0 {
		err := async.Run(ctx, deliverTimeout, "deliver in-app notification", func(ctx context.Context) error {
			return w.store.Create(ctx, &accounts.Notification{
				RecipientID: msg.Recipient.UserID,
				EventType:   msg.EventType,
				Payload:     msg.Payload,
				CreatedAt:   msg.EnqueuedAt,
			})
		})
		w.metrics.ObserveNotificationDelivered(ChannelInApp, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ChannelInApp, err))
		}
	}

	if channels.Email && msg.Recipient.Email != "" {
		email := RenderEmail(*msg)
		err := async.Run(ctx, deliverTimeout, "deliver email notification", func(ctx context.Context) error {
			return w.mailer.Send(ctx, email)
		})
		w.metrics.ObserveNotificationDelivered(ChannelEmail, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ChannelEmail, err))
		}
	}

	return errors.Join(errs...)
}

// InlineSink delivers through a Worker on the caller's goroutine. It stands
// in for the Redis queue when none is configured.
type InlineSink struct {
	worker *Worker
}

// NewInlineSink returns a Sink that hands every message straight to w
func NewInlineSink(w *Worker) *InlineSink {
	return &InlineSink{worker: w}
}

// Notify implements Sink
func (s *InlineSink) Notify(ctx context.Context, to Recipient, eventType string, payload map[string]any) error {
	msg := NewMessage(to, eventType, payload)
	s.worker.metrics.ObserveNotificationEnqueued(eventType)
	return s.worker.Process(ctx, &msg)
}
