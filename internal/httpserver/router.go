package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/internal/handler"
	"github.com/stablelab/growth-milestone-service/internal/repository"
)

const serviceName = "growth-milestone-service"

type Router struct {
	Engine *gin.Engine
}

// NewRouter wires the HTTP surface. Health, readiness and metrics probes
// are unauthenticated; everything else requires the shared-secret header.
// rdb may be nil when Redis is not configured.
func NewRouter(
	milestoneHandler *handler.MilestoneHandler,
	webhookHandler *handler.WebhookHandler,
	apiKey string,
	store repository.Store,
	rdb *redis.Client,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(RequestLogMiddleware(logger))

	// Health endpoints (unauthenticated by design, unlike the rest)
	health := func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "ok",
			"service":   serviceName,
			"storage":   store.Location(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
	r.GET("/health", health)
	r.HEAD("/health", func(c *gin.Context) { c.Status(200) })
	r.GET("/healthz", health)
	r.HEAD("/healthz", func(c *gin.Context) { c.Status(200) })

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "store_not_ready", "error": err.Error()})
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				c.JSON(500, gin.H{"status": "redis_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(apiKey))
	{
		auth.POST("/milestones", milestoneHandler.CreateMilestone)
		auth.GET("/milestones", milestoneHandler.ListMilestones)
		auth.GET("/milestones/:id", milestoneHandler.GetMilestone)
		auth.PATCH("/milestones/:id", milestoneHandler.UpdateMilestone)
		auth.DELETE("/milestones/:id", milestoneHandler.DeleteMilestone)
		auth.POST("/webhooks/milestone-complete", webhookHandler.MilestoneComplete)
		auth.GET("/export", milestoneHandler.ExportStore)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
