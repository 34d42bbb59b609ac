package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harsh-BH/reel/internal/backoff"
	"github.com/Harsh-BH/reel/internal/config"
	amqpdelivery "github.com/Harsh-BH/reel/internal/delivery/amqp"
	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/notify"
	"github.com/Harsh-BH/reel/internal/pipeline"
	"github.com/Harsh-BH/reel/internal/pool"
	"github.com/Harsh-BH/reel/internal/publisher"
	"github.com/Harsh-BH/reel/internal/repository/postgres"
	redisrepo "github.com/Harsh-BH/reel/internal/repository/redis"
	"github.com/Harsh-BH/reel/internal/usecase"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting Reel media worker")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

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
		logger.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	jobRepo := postgres.NewPostgresJobRepository(dbPool)
	pending := redisrepo.NewRedisPendingIndex(redisClient, cfg.Redis.PendingTTL)

	pipelines, err := buildPipelines(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build processing pipeline", zap.Error(err))
	}

	notifier, nc := buildNotifier(cfg, logger)
	if nc != nil {
		defer nc.Drain()
	}

	executeUC := usecase.NewExecuteJobUsecase(jobRepo, pipelines, notifier, logger)

	// Buffered delivery channel; prefetch keeps it from growing past the pool's reach.
	items := make(chan *domain.WorkMessage, cfg.Worker.PoolSize)

	consumer, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, pending, amqpdelivery.Options{
		Prefetch:    cfg.Worker.PoolSize,
		MaxAttempts: cfg.RabbitMQ.MaxAttempts,
		Retry:       backoff.NewJittered(cfg.RabbitMQ.RetryBaseDelay, cfg.RabbitMQ.RetryMaxDelay),
		PendingTTL:  cfg.Redis.PendingTTL,
	}, items, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	defer consumer.Close()
	logger.Info("Connected to RabbitMQ")

	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, items, executeUC, logger)
	workerPool.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := consumer.Start(gctx); err != nil {
			return fmt.Errorf("amqp consumer: %w", err)
		}
		return nil
	})

	if cfg.Worker.ReconcileInterval > 0 {
		pub, err := publisher.NewRabbitMQPublisher(cfg.RabbitMQ.URL, pending, logger)
		if err != nil {
			logger.Fatal("Failed to initialize reconciliation publisher", zap.Error(err))
		}
		defer pub.Close()

		reconcileUC := usecase.NewReconcileUsecase(jobRepo, pub, cfg.Worker.OrphanAfter, cfg.Worker.StallAfter, logger)
		g.Go(func() error {
			return reconcileUC.Run(gctx, cfg.Worker.ReconcileInterval)
		})
	}

	// Prometheus metrics server
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		ReadHeaderTimeout: 5 * time.Second,
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv.Handler = mux

	g.Go(func() error {
		logger.Info("Metrics server listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	<-gctx.Done()
	logger.Info("Shutting down worker...")
	stop()

	// Wait for workers to settle in-flight items
	workerPool.Stop()

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("Worker stopped")
}

// buildPipelines registers the processing pipeline. With WORKER_STAGE_COMMAND set, the final
// stage runs that command against the media file; otherwise every stage is simulated.
func buildPipelines(cfg *config.Config, logger *zap.Logger) (*pipeline.Registry, error) {
	if cfg.Worker.StageCommand == "" {
		logger.Info("Using simulated pipeline", zap.Duration("stage_delay", cfg.Worker.StageDelay))
		return pipeline.NewRegistry(pipeline.NewSimulated(cfg.Worker.StageDelay)), nil
	}

	final, err := pipeline.NewCommandStage(cfg.Worker.StageCommand, cfg.Worker.MediaDir, cfg.Worker.CommandTimeout, domain.MaxProgress, logger)
	if err != nil {
		return nil, err
	}
	stages := append(pipeline.Checkpoints(cfg.Worker.StageDelay, 25, 60), final)
	logger.Info("Using command pipeline",
		zap.String("command", cfg.Worker.StageCommand),
		zap.String("media_dir", cfg.Worker.MediaDir),
	)
	return pipeline.NewRegistry(pipeline.New(stages...)), nil
}

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
		}
	}
	if cfg.Webhook.Enabled {
		sinks = append(sinks, notify.Sink{Name: "webhook", Notifier: notify.NewWebhookNotifier(cfg.Webhook.Timeout)})
	}

	return notify.NewFanout(logger, sinks...), nc
}
