package api

import (
	followupDelivery "followup-backend/internal/followup/delivery"
	followupUsecase "followup-backend/internal/followup/usecase"
	teamDelivery "followup-backend/internal/team/delivery"
	teamRepo "followup-backend/internal/team/repository"
	"followup-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	config          *config.Config
	followUpHandler *followupDelivery.FollowUpHandler
	teamHandler     *teamDelivery.TeamHandler
}

func NewHandler(cfg *config.Config, followUpUc followupUsecase.FollowUpUsecase, teamRepository teamRepo.TeamRepository) *Handler {
	return &Handler{
		config:          cfg,
		followUpHandler: followupDelivery.NewFollowUpHandler(followUpUc),
		teamHandler:     teamDelivery.NewTeamHandler(teamRepository),
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.config, h.followUpHandler, h.teamHandler)

	return r.Run(addr)
}
