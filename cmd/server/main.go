package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harsh-BH/reel/internal/config"
	handler "github.com/Harsh-BH/reel/internal/delivery/http"
	"github.com/Harsh-BH/reel/internal/notify"
	"github.com/Harsh-BH/reel/internal/publisher"
	"github.com/Harsh-BH/reel/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/reel/internal/repository/redis"
	"github.com/Harsh-BH/reel/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting Reel API Server")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, dbPool); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}
	logger.Info("Connected to PostgreSQL")

	// Connect to Redis
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	rdb := goredis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to ping Redis", zap.Error(err))
	}
	logger.Info("Connected to Redis")

	pending := redisrepo.NewRedisPendingIndex(rdb, cfg.Redis.PendingTTL)

	// Initialize RabbitMQ publisher
	pub, err := publisher.NewRabbitMQPublisher(cfg.RabbitMQ.URL, pending, logger)
	if err != nil {
		logger.Fatal("Failed to initialize RabbitMQ publisher", zap.Error(err))
	}
	defer pub.Close()
	logger.Info("Connected to RabbitMQ")

	notifier, nc := buildNotifier(cfg, logger)
	if nc != nil {
		defer nc.Drain()
	}

	jobRepo := postgres.NewPostgresJobRepository(dbPool)

	router := handler.NewRouter(ctx, handler.RouterDeps{
		Submit: usecase.NewSubmitJobUsecase(jobRepo, pub, logger),
		List:   usecase.NewListJobsUsecase(jobRepo, logger),
		Get:    usecase.NewGetJobUsecase(jobRepo, logger),
		Cancel: usecase.NewCancelJobUsecase(jobRepo, pub, notifier, logger),
		HealthChecks: map[string]handler.HealthCheck{
			"postgres": jobRepo.Ping,
			"rabbitmq": pub.Ping,
			"redis":    pending.Ping,
		},
		Logger:          logger,
		RateLimitPerMin: cfg.Server.RateLimit,
		BodyLimit:       cfg.Server.BodyLimit,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("API server stopped with error", zap.Error(err))
		return
	}
	logger.Info("API server stopped")
}

// buildNotifier wires the lifecycle event sinks. NATS is optional; webhooks go to each job's
// callback URL.
func buildNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, *nats.Conn) {
	var sinks []notify.Sink
	var nc *nats.Conn

	if cfg.NATS.URL != "" {
		conn, err := notify.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS unavailable, lifecycle events will not be published", zap.Error(err))
		} else {
			nc = conn
			sinks = append(sinks, notify.Sink{Name: "nats", Notifier: notify.NewNATSNotifier(conn, cfg.NATS.SubjectPrefix)})
			logger.Info("Connected to NATS", zap.String("subject_prefix", cfg.NATS.SubjectPrefix))
		}
	}
	if cfg.Webhook.Enabled {
		sinks = append(sinks, notify.Sink{Name: "webhook", Notifier: notify.NewWebhookNotifier(cfg.Webhook.Timeout)})
	}

	return notify.NewFanout(logger, sinks...), nc
}
