package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/api"
	"github.com/ayo6706/dual-currency-settlement/internal/api/middleware"
	"github.com/ayo6706/dual-currency-settlement/internal/config"
	"github.com/ayo6706/dual-currency-settlement/internal/db"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/idempotency"
	"github.com/ayo6706/dual-currency-settlement/internal/messaging"
	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/ayo6706/dual-currency-settlement/internal/repository"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
	"github.com/ayo6706/dual-currency-settlement/internal/stream"
	"github.com/ayo6706/dual-currency-settlement/internal/worker"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run bootstraps the settlement network, its workers and the HTTP server,
// blocking until a shutdown signal or a fatal error.
func Run(args []string) (err error) {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}
	}()

	bus := events.NewBus(
		events.WithRetention(cfg.EventRetention),
		events.WithLogger(logger),
		events.WithFailureHook(observability.IncrementEventSinkFailure),
	)

	deps := api.Deps{Config: cfg, Logger: logger, Bus: bus}

	var store *repository.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, func() error { pool.Close(); return nil })
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		store = repository.NewStore(pool)
		deps.Settlements = store
		deps.DB = store
	} else {
		logger.Warn("DATABASE_URL not set; settlement journal disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, redisClient.Close)
		deps.Redis = redisClient
	}

	if cfg.NATSURL != "" {
		nc, err := messaging.NewClient(messaging.Config{
			URL:    cfg.NATSURL,
			Name:   "dual-currency-settlement",
			Prefix: cfg.NATSPrefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		closers = append(closers, nc.Close)
		bus.Attach(nc)
		deps.NATS = nc
	}

	hub := stream.NewHub(stream.WithLogger(logger), stream.WithCountHook(observability.SetStreamClients))
	closers = append(closers, func() error { hub.CloseAll(); return nil })
	bus.Attach(hub)
	deps.Hub = hub

	// A nil *redis.Client must not reach the feed or the idempotency store as a
	// non-nil redis.Cmdable.
	var cmdable redis.Cmdable
	if redisClient != nil {
		cmdable = redisClient
	}

	network, err := service.Bootstrap(cfg, bus, cmdable, logger)
	if err != nil {
		return fmt.Errorf("bootstrap network: %w", err)
	}
	deps.Network = network
	bus.Attach(service.NewMetricsSink(network))

	var backend idempotency.Backend = idempotency.NewMemoryBackend(cfg.IdempotencyTTL)
	if store != nil {
		backend = store.Queries()
	}
	deps.Idempotency = idempotency.NewStore(cmdable, backend, cfg.IdempotencyTTL)

	g, gctx := errgroup.WithContext(ctx)

	violations := make(chan error, 1)
	ledgers := make([]service.Auditable, 0, 2)
	for _, l := range network.Ledgers() {
		ledgers = append(ledgers, l)
	}
	reconciler := worker.NewReconciliationWorker(service.NewReconciliationService(ledgers...)).
		WithInterval(cfg.ReconciliationInterval).
		OnViolation(func(verr error) {
			select {
			case violations <- verr:
			default:
			}
		})
	stopReconciler := reconciler.Run(gctx)

	rateWorker := worker.NewRateWorker(service.NewRateMonitor(network.Providers)).WithInterval(cfg.RatePollInterval)
	stopRates := rateWorker.Run(gctx)

	stopJournal := func() {}
	if store != nil {
		journal := worker.NewJournalWorker(service.NewJournalService(bus, store)).
			WithPollInterval(cfg.JournalPollInterval).
			WithBatchSize(cfg.JournalBatchSize)
		stopJournal = journal.Run(gctx)
		logger.Info("journal worker started", zap.Stringer("worker", journal))
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var violation error
		select {
		case <-gctx.Done():
			logger.Info("shutdown signal received")
		case violation = <-violations:
			logger.Error("stopping on broken ledger invariant", zap.Error(violation))
		}

		stopReconciler()
		stopRates()
		stopJournal()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", zap.Error(err))
			return err
		}
		return violation
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
