package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/sebuszqo/PaymentMethods/internal/auth"
	"github.com/sebuszqo/PaymentMethods/internal/config"
	database "github.com/sebuszqo/PaymentMethods/internal/db"
	"github.com/sebuszqo/PaymentMethods/internal/idempotency"
	"github.com/sebuszqo/PaymentMethods/internal/logging"
	"github.com/sebuszqo/PaymentMethods/internal/payment/application"
	"github.com/sebuszqo/PaymentMethods/internal/payment/infrastructure/postgres"
	"github.com/sebuszqo/PaymentMethods/internal/payment/infrastructure/stripe"
	"github.com/sebuszqo/PaymentMethods/internal/payment/interfaces"
	"github.com/sebuszqo/PaymentMethods/internal/ratelimit"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before starting")

	return cmd
}

// openDatabase loads the configuration and connects to Postgres. Every
// command that touches the store starts here.
func openDatabase(ctx context.Context, required ...string) (*config.Config, *slog.Logger, *database.DBService, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(required...); err != nil {
		return nil, nil, nil, err
	}
	log := logging.New(cfg.LogLevel)

	dbService, err := database.NewDBService(ctx, database.Config{
		ConnectionString: cfg.DBConnectionString,
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetime:  cfg.DBConnMaxLifetime,
	}, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not initialize database: %w", err)
	}
	return cfg, log, dbService, nil
}

func newRegistry(cfg *config.Config, log *slog.Logger, dbService *database.DBService) (*application.Registry, error) {
	processor, err := stripe.NewProcessor(cfg.StripeSecretKey, log)
	if err != nil {
		return nil, err
	}
	store := postgres.NewPaymentRepository(dbService.DB, log)
	return application.NewRegistry(store, processor, log), nil
}

func runServe(ctx context.Context, migrate bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, dbService, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer dbService.Close()

	if migrate {
		if err := dbService.Migrate(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	registry, err := newRegistry(cfg, log, dbService)
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		return err
	}

	paymentHandler := interfaces.NewPaymentHandler(registry, interfaces.RespondJSON, interfaces.RespondError, log)
	server := NewServer(paymentHandler, jwtManager, dbService, log)

	if cfg.RedisURL != "" {
		rdb, err := newRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return err
		}
		defer rdb.Close()

		limiter := ratelimit.NewLimiter(ratelimit.NewRedisCounter(rdb), ratelimit.Config{
			Requests: cfg.RateLimitRequests,
			Window:   cfg.RateLimitWindow,
		}, log)
		server.WithRedisGuards(limiter, idempotency.NewStore(rdb, cfg.IdempotencyTTL))
	} else {
		log.Warn("REDIS_URL not set, rate limiting and idempotency keys are disabled")
	}

	server.RegisterRoutes()

	if cfg.ReconcileSchedule != "" {
		scheduler, err := StartReconcileScheduler(registry, cfg.ReconcileSchedule, log)
		if err != nil {
			return fmt.Errorf("scheduler didn't start: %w", err)
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case sig := <-stop:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newRedisClient(ctx context.Context, redisURL string, log *slog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	// the guards fail open, so an unreachable Redis is not fatal
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable at startup", "err", err)
	}
	return rdb, nil
}

func StartReconcileScheduler(registry *application.Registry, schedule string, log *slog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		repaired, err := registry.Reconcile(ctx)
		if err != nil {
			log.Error("reconciling default payment methods failed", "repaired", repaired, "err", err)
			return
		}
		if repaired > 0 {
			log.Info("default payment methods reconciled", "repaired", repaired)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
