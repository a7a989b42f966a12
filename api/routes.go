package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mailflux/mailflux/api/handlers"
	"github.com/mailflux/mailflux/api/middleware"
	"github.com/mailflux/mailflux/internal/tracing"
	"github.com/mailflux/mailflux/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services) {
	if s == nil {
		panic("Services cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	apiHandlers := handlers.InitHandlers(s)

	r.GET("/health", handlers.HealthCheck)

	// Tracking ingress is unauthenticated: pixels and redirects are fetched
	// by recipient mail clients.
	track := r.Group("/t")
	{
		track.GET("/o/:id", apiHandlers.Tracking.Open())
		track.GET("/c/:id", apiHandlers.Tracking.Click())
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.BearerAuthMiddleware(s.AuthService))
	v1.Use(middleware.TracingMiddleware())
	{
		v1.GET("/me", apiHandlers.Me.Get())
		v1.POST("/send", apiHandlers.Send.Send())

		events := v1.Group("/events")
		{
			events.GET("", apiHandlers.Events.List())
			events.GET("/stats", apiHandlers.Events.Stats())
			events.GET("/:messageId", apiHandlers.Events.GetByMessage())
			events.POST("", apiHandlers.Events.Ingest())
		}

		suppressions := v1.Group("/suppressions")
		{
			suppressions.GET("", apiHandlers.Suppressions.List())
			suppressions.GET("/check", apiHandlers.Suppressions.Check())
			suppressions.GET("/stats", apiHandlers.Suppressions.Stats())
			suppressions.POST("", apiHandlers.Suppressions.Add())
			suppressions.DELETE("/:id", apiHandlers.Suppressions.Remove())
		}
	}
}
