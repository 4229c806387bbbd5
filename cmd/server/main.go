package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habita/internal/allocation"
	"habita/internal/appeal"
	"habita/internal/application"
	appmetrics "habita/internal/application/metrics"
	"habita/internal/notify"
	"habita/internal/platform/config"
	"habita/internal/platform/httpserver"
	"habita/internal/platform/logger"
	"habita/internal/platform/metrics"
	"habita/internal/platform/redis"
	"habita/internal/platform/token"
	"habita/internal/storage"
	"habita/internal/timeline"
	httptransport "habita/internal/transport/http"
	"habita/internal/waitlist"
	id "habita/pkg/domain"
)

func main() {
	if err := run(); err != nil {
		logger.New().Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		apps     storage.ApplicationStore
		programs storage.ProgramStore
		entries  storage.TimelineStore
	)
	switch cfg.Storage {
	case config.BackendPostgres:
		db, err := storage.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.EnsureSchema(ctx, db); err != nil {
			return err
		}
		apps = storage.NewPostgresApplicationStore(db)
		programs = storage.NewPostgresProgramStore(db)
		entries = storage.NewPostgresTimelineStore(db)
		log.Info("storage ready", "backend", "postgres")
	default:
		apps = storage.NewInMemoryApplicationStore()
		programs = storage.NewInMemoryProgramStore()
		entries = storage.NewInMemoryTimelineStore()
		log.Info("storage ready", "backend", "memory")
	}

	var sink notify.Sink = notify.NewLogSink(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sink = kafka
		log.Info("notifications ready", "topic", cfg.Kafka.Topic, "brokers", len(cfg.Kafka.Brokers))
	}

	var deadlines allocation.DeadlineIndex = allocation.NewMemoryDeadlineIndex()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		deadlines = allocation.NewRedisDeadlineIndex(redisClient.Client)
		log.Info("deadline index ready", "backend", "redis")
	}

	pool := allocation.NewStaticPool(nil)
	for i := 0; i < cfg.SeedUnits; i++ {
		pool.Add(id.NewUnitID())
	}

	service := application.NewService(
		apps,
		programs,
		timeline.NewService(entries),
		waitlist.NewManager(),
		application.SubmissionVerifier{},
		application.WithLogger(log),
		application.WithNotifier(sink),
		application.WithMetrics(appmetrics.New()),
		application.WithUnitReleaser(pool),
	)
	coordinator := allocation.NewCoordinator(service, pool, deadlines, log)
	processor := appeal.NewProcessor(service, log)
	tokens := token.NewService(cfg.JWTSigningKey, "habita")

	router := httptransport.NewRouter(log, metrics.New(), tokens,
		httptransport.NewApplicationHandler(service, log),
		httptransport.NewAllocationHandler(coordinator, service, log),
		httptransport.NewAppealHandler(processor, log),
		httptransport.NewProgramHandler(programs, log),
	)
	server := httpserver.New(cfg.Addr, router)

	if cfg.SweepInterval > 0 {
		go sweepLoop(ctx, coordinator, cfg.SweepInterval, log)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sweepLoop expires overdue offers on a fixed cadence until the process stops.
func sweepLoop(ctx context.Context, coordinator *allocation.Coordinator, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := coordinator.SweepDue(ctx)
			if err != nil {
				log.ErrorContext(ctx, "deadline sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				log.InfoContext(ctx, "deadline sweep expired offers", "count", expired)
			}
		}
	}
}
