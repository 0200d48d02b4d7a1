package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/taskwell/mailroom/api/handlers"
	"github.com/taskwell/mailroom/api/middleware"
	"github.com/taskwell/mailroom/internal/repository"
	"github.com/taskwell/mailroom/internal/tracing"
	"github.com/taskwell/mailroom/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string, maxAttempts int) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	// Health check and status endpoints (no auth needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.EngineStatus(s.Poller))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILROOM-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	{
		// Inbox endpoints
		inboxes := api.Group("/inboxes")
		{
			inboxes.GET("", handlers.ListInboxes(repos.InboxRepository))
			inboxes.POST("", handlers.RegisterInbox(repos.InboxRepository))
			inboxes.DELETE("/:id", handlers.RemoveInbox(repos.InboxRepository, repos.SyncStateRepository))

			// Rule endpoints, scoped to an inbox
			inboxes.GET("/:id/rules", handlers.ListRules(repos.RuleRepository))
			inboxes.POST("/:id/rules", handlers.SaveRule(repos.RuleRepository))

			// Retryable failures, for operator visibility
			inboxes.GET("/:id/failures", handlers.ListFailures(repos.IngestionRecordRepository, maxAttempts))
		}
	}
}
