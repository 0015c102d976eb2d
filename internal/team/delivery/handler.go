package delivery

import (
	"net/http"

	"followup-backend/internal/team/repository"

	"github.com/gin-gonic/gin"
)

// TeamHandler handles device-token registration for push notifications
type TeamHandler struct {
	teamRepo repository.TeamRepository
}

// NewTeamHandler creates a new TeamHandler
func NewTeamHandler(teamRepo repository.TeamRepository) *TeamHandler {
	return &TeamHandler{teamRepo: teamRepo}
}

// RegisterDeviceRequest is the request body for registering a device token
type RegisterDeviceRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegisterDevice stores an FCM device token for the caller
// POST /api/devices
func (h *TeamHandler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.teamRepo.RegisterDeviceToken(c.GetString("userID"), req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"registered": true})
}

// UnregisterDevice removes an FCM device token
// DELETE /api/devices/:token
func (h *TeamHandler) UnregisterDevice(c *gin.Context) {
	if err := h.teamRepo.DeleteDeviceToken(c.Param("token")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
