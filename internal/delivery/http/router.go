package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/delivery/http/middleware"
	"github.com/Harsh-BH/reel/internal/usecase"
)

// RouterDeps bundles what the HTTP surface needs.
type RouterDeps struct {
	Submit *usecase.SubmitJobUsecase
	List   *usecase.ListJobsUsecase
	Get    *usecase.GetJobUsecase
	Cancel *usecase.CancelJobUsecase

	// HealthChecks maps a dependency name to its ping.
	HealthChecks map[string]HealthCheck

	Logger          *zap.Logger
	RateLimitPerMin int
	BodyLimit       int64
}

// NewRouter creates and configures the Gin router with all routes and middleware.
// ctx bounds background middleware state such as the rate limiter sweeper.
func NewRouter(ctx context.Context, deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(deps.Logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(deps.HealthChecks, deps.Logger)
		v1.GET("/health", healthHandler.Health)

		jobs := v1.Group("/jobs")
		if deps.RateLimitPerMin > 0 {
			jobs.Use(middleware.RateLimiter(ctx, deps.RateLimitPerMin))
		}
		if deps.BodyLimit > 0 {
			jobs.Use(middleware.BodySizeLimit(deps.BodyLimit))
		}

		jobHandler := NewJobHandler(deps.Submit, deps.List, deps.Get, deps.Cancel, deps.Logger)
		jobs.POST("", jobHandler.Submit)
		jobs.GET("", jobHandler.List)
		jobs.GET("/:id", jobHandler.GetByID)
		jobs.DELETE("/:id", jobHandler.Cancel)

		wsHandler := NewWebSocketHandler(deps.Get, deps.Logger)
		jobs.GET("/:id/stream", wsHandler.Stream)
	}

	return router
}
