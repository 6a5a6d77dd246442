package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/billing"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/emailchange"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/notifications"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/users"
)

// app holds the wired services of one process
type app struct {
	log      *logrus.Logger
	metrics  *observability.Metrics
	health   *observability.HealthChecker
	recorder *audit.Recorder

	// queue and worker are nil when notifications are delivered inline
	notifier notifications.Sink
	queue    *notifications.RedisQueue
	worker   *notifications.Worker

	users         *users.Service
	invitations   *invitations.Service
	emailChanges  *emailchange.Service
	billing       *billing.Service
	inbox         *notifications.Inbox
	announcements *notifications.Announcements
	auditLog      *audit.SQLStore
}

// newApp wires every service on top of db and the optional redis client
func newApp(cfg *config.Config, db *storage.DB, rdb *redis.Client, metrics *observability.Metrics, log *logrus.Logger) *app {
	a := &app{
		log:     log,
		metrics: metrics,
		health:  observability.NewHealthChecker(db.DB, rdb, cfg.OTel.ServiceVersion),
	}

	engine := policy.NewEngine(policy.WithLogger(log), policy.WithDenialObserver(metrics))

	a.auditLog = audit.NewSQLStore(db.DB)
	recorderOpts := []audit.RecorderOption{audit.WithMetrics(metrics)}
	if cfg.Audit.Async {
		recorderOpts = append(recorderOpts, audit.WithAsync())
	}
	a.recorder = audit.NewRecorder(log, []audit.Sink{a.auditLog, audit.NewLogSink(log)}, recorderOpts...)

	notificationStore := notifications.NewSQLStore(db.DB)
	if rdb != nil {
		a.queue = notifications.NewRedisQueue(rdb, cfg.Notifications.QueueKey, metrics)
		a.worker = notifications.NewWorker(a.queue, notificationStore, nil, log,
			notifications.WithWorkerMetrics(metrics),
			notifications.WithPollTimeout(cfg.Notifications.PollTimeout),
		)
		a.notifier = a.queue
	} else {
		log.Warn("redis is not configured, delivering notifications inline")
		a.notifier = notifications.NewInlineSink(notifications.NewWorker(nil, notificationStore, nil, log,
			notifications.WithWorkerMetrics(metrics),
		))
	}
	a.inbox = notifications.NewInbox(notificationStore, engine)
	a.announcements = notifications.NewAnnouncements(notificationStore, engine, a.recorder, log)

	var userStore users.Store = users.NewSQLStore(db.DB, db.Dialect)
	emailOpts := []emailchange.Option{emailchange.WithMetrics(metrics)}
	if cfg.Cache.Enabled {
		cache := users.NewCachingStore(userStore, cfg.Cache.Users(), metrics)
		userStore = cache
		emailOpts = append(emailOpts, emailchange.WithUserCache(cache))
	}

	a.users = users.NewService(userStore, engine, a.recorder, a.notifier, log, users.WithMetrics(metrics))
	a.invitations = invitations.NewService(
		invitations.NewSQLStore(db.DB, db.Dialect), engine, a.recorder, a.notifier, log,
		invitations.WithMetrics(metrics),
		invitations.WithTTL(cfg.Invitations.TTL),
	)
	a.emailChanges = emailchange.NewService(emailchange.NewSQLStore(db.DB, db.Dialect), engine, a.recorder, a.notifier, log, emailOpts...)
	a.billing = billing.NewService(billing.NewSQLStore(db.DB, db.Dialect), engine, a.recorder, a.notifier, log)

	return a
}

// handler serves the ops endpoints
func (a *app) handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/healthz", a.health).Methods(http.MethodGet)
	r.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return otelhttp.NewHandler(r, "warden")
}

// exportAudit writes up to 1000 audit entries recorded since the given time
func (a *app) exportAudit(ctx context.Context, w io.Writer, since time.Time, format audit.ExportFormat) error {
	entries, err := a.auditLog.List(ctx, audit.Query{Since: &since, Limit: 1000})
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}
	return audit.Export(w, entries, format)
}
