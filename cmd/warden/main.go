package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/invitations"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

var (
	configPath   = flag.String("config", os.Getenv(config.PathEnv), "Path to the YAML config file")
	migrateOnly  = flag.Bool("migrate", false, "Run database migrations and exit")
	cleanupOnce  = flag.Bool("cleanup-once", false, "Delete expired invitations once and exit")
	exportSince  = flag.Duration("export-audit", 0, "Write audit entries from this far back to stdout and exit (e.g. 24h)")
	exportFormat = flag.String("export-format", string(audit.ExportNDJSON), "Audit export format: json, ndjson or csv")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("warden exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db.DB, db.Dialect, log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if *migrateOnly {
		log.Info("migrations complete")
		return nil
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		rdb, err = storage.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	providers, err := observability.InitOTel(ctx, cfg.OTel, log)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("OpenTelemetry shutdown failed")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics(otel.Meter(observability.TracerName))
		if err != nil {
			return fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
		}
		metrics.WithOTel(otelMetrics)
	}

	a := newApp(cfg, db, rdb, metrics, log)
	defer a.recorder.Wait()

	switch {
	case *cleanupOnce:
		deleted, err := a.invitations.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		log.WithField("deleted", deleted).Info("expired invitations removed")
		return nil
	case *exportSince > 0:
		since := time.Now().UTC().Add(-*exportSince)
		return a.exportAudit(ctx, os.Stdout, since, audit.ExportFormat(*exportFormat))
	}

	return serve(ctx, cfg, a)
}

// serve runs the ops listener, the notification worker, the scheduler and
// the config watcher until ctx is canceled
func serve(ctx context.Context, cfg *config.Config, a *app) error {
	log := a.log
	scheduler, err := newScheduler(cfg, a)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	g.Go(func() error {
		log.WithField("addr", server.Addr).Info("starting ops server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(ctx) })
	}

	scheduler.Start()
	log.WithField("schedule", cfg.Invitations.CleanupSchedule).Info("invitation cleanup scheduled")
	g.Go(func() error {
		<-ctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, log)
		if err != nil {
			log.WithError(err).Warn("config reload disabled")
		} else {
			g.Go(func() error {
				return watcher.Run(ctx, func(next *config.Config) {
					if err := config.ApplyLogLevel(log, next); err != nil {
						log.WithError(err).Warn("failed to apply log level")
					}
				})
			})
		}
	}

	log.Info("warden started")
	err = g.Wait()
	log.Info("warden stopped")
	return err
}

// newScheduler registers the periodic jobs without starting them
func newScheduler(cfg *config.Config, a *app) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithLocation(time.UTC))
	if _, err := invitations.ScheduleCleanup(scheduler, a.invitations, cfg.Invitations.CleanupSchedule, a.log); err != nil {
		return nil, fmt.Errorf("failed to schedule invitation cleanup: %w", err)
	}
	return scheduler, nil
}
