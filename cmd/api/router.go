package api

import (
	"net/http"

	authDelivery "followup-backend/internal/auth/delivery"
	followupDelivery "followup-backend/internal/followup/delivery"
	teamDelivery "followup-backend/internal/team/delivery"
	"followup-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, followUpHandler *followupDelivery.FollowUpHandler, teamHandler *teamDelivery.TeamHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Follow-up routes (protected)
		followups := api.Group("/followups")
		followups.Use(authDelivery.AuthMiddleware(cfg.JWTSecret))
		{
			followups.GET("", followUpHandler.GetFollowUps)
			followups.GET("/:id", followUpHandler.GetFollowUpByID)
			followups.GET("/:id/events", followUpHandler.GetFollowUpEvents)
			followups.POST("/:id/approve", followUpHandler.ApproveFollowUp)
			followups.POST("/:id/snooze", followUpHandler.SnoozeFollowUp)
			followups.POST("/:id/dismiss", followUpHandler.DismissFollowUp)
			followups.POST("/:id/regenerate", followUpHandler.RegenerateDraft)
		}

		// Device token routes (protected)
		devices := api.Group("/devices")
		devices.Use(authDelivery.AuthMiddleware(cfg.JWTSecret))
		{
			devices.POST("", teamHandler.RegisterDevice)
			devices.DELETE("/:token", teamHandler.UnregisterDevice)
		}
	}
}
