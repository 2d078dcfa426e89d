package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/api"
	"github.com/lalithlochan/bloodlink/internal/auth"
	"github.com/lalithlochan/bloodlink/internal/circuitbreaker"
	"github.com/lalithlochan/bloodlink/internal/config"
	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/donation"
	"github.com/lalithlochan/bloodlink/internal/geo"
	"github.com/lalithlochan/bloodlink/internal/metrics"
	"github.com/lalithlochan/bloodlink/internal/notify"
	"github.com/lalithlochan/bloodlink/internal/observ"
	"github.com/lalithlochan/bloodlink/internal/redis"
	"github.com/lalithlochan/bloodlink/internal/reminder"
	"github.com/lalithlochan/bloodlink/internal/sns"
	"github.com/lalithlochan/bloodlink/internal/sqs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting bloodlink server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{DSN: cfg.DatabaseURL(), MaxConns: cfg.DBMaxConns}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	health := map[string]api.HealthCheck{"postgres": database.Health}
	routerCfg := api.RouterConfig{
		Verifier:       issuer,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		Health:         health,
	}

	// Redis backs rate limiting and idempotency; without it both are off.
	if cfg.RedisEnabled() {
		redisClient, err := redis.New(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, rate limiting and idempotency disabled",
				zap.Error(err),
				zap.String("host", cfg.RedisHost),
			)
		} else {
			defer redisClient.Close()
			routerCfg.Limiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
				Limit:  cfg.RateLimit,
				Window: cfg.RateLimitWindow,
			})
			routerCfg.Idempotency = redis.NewIdempotencyService(redisClient, logger)
			health["redis"] = redisClient.Ping
		}
	}

	var notifyOpts []notify.Option

	if cfg.SQSQueueURL != "" {
		producer, err := sqs.NewProducer(ctx, sqs.Config{Region: cfg.AWSRegion, QueueURL: cfg.SQSQueueURL}, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, lifecycle events will not be published", zap.Error(err))
		} else {
			notifyOpts = append(notifyOpts, notify.WithEvents(producer))
		}
	}

	if cfg.SMSEnabled {
		smsSender, err := sns.NewSMSSender(ctx, sns.Config{
			Region:      cfg.AWSRegion,
			CountryCode: cfg.SMSCountryCode,
			SenderID:    cfg.SMSSenderID,
		})
		if err != nil {
			logger.Warn("sns sender unavailable, sms alerts disabled", zap.Error(err))
		} else {
			breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("sns"), logger)
			breaker.OnTransition(func(name string, to circuitbreaker.State) {
				metrics.SetCircuitBreakerState(name, int(to))
			})
			metrics.SetCircuitBreakerState(breaker.Name(), int(breaker.State()))
			notifyOpts = append(notifyOpts, notify.WithSMS(circuitbreaker.Protect(smsSender, breaker)))
		}
	}

	logger.Info("notification fan-out configured",
		zap.Bool("events_enabled", cfg.SQSQueueURL != ""),
		zap.Bool("sms_enabled", cfg.SMSEnabled),
	)

	notifier := notify.New(repo, logger, notifyOpts...)
	jitter := geo.NewJitterer(rand.NewSource(time.Now().UnixNano()))
	workflow := donation.NewService(repo, notifier, jitter, logger)
	appointments := donation.NewAppointments(repo, logger)
	accounts := donation.NewAccounts(repo, issuer, jitter, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	reminders := reminder.New(repo, notifier, reminder.Config{
		PollInterval: cfg.ReminderInterval,
		BatchSize:    cfg.ReminderBatchSize,
	}, logger)
	go reminders.Start(workerCtx)
	go reportPoolStats(workerCtx, database)

	logger.Info("reminder worker started", zap.Duration("interval", cfg.ReminderInterval))

	routerCfg.Handler = api.NewHandler(logger, workflow, appointments, repo, accounts)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		workerCancel()
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

func reportPoolStats(ctx context.Context, database *db.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetDBConnections(database.Pool().Stat().AcquiredConns())
		}
	}
}
