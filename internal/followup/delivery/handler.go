package delivery

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"followup-backend/internal/followup/usecase"

	"github.com/gin-gonic/gin"
)

// FollowUpHandler handles follow-up HTTP requests
type FollowUpHandler struct {
	followUpUsecase usecase.FollowUpUsecase
}

// NewFollowUpHandler creates a new FollowUpHandler
func NewFollowUpHandler(followUpUsecase usecase.FollowUpUsecase) *FollowUpHandler {
	return &FollowUpHandler{followUpUsecase: followUpUsecase}
}

// SnoozeRequest is the request body for snoozing a follow-up
type SnoozeRequest struct {
	Minutes int `json:"minutes"`
}

// DismissRequest is the request body for dismissing a follow-up
type DismissRequest struct {
	Reason string `json:"reason"`
}

// GetFollowUps returns the caller's team follow-ups
// GET /api/followups?status=pending&owner=u1&q=acme&limit=50
func (h *FollowUpHandler) GetFollowUps(c *gin.Context) {
	teamID := c.GetString("teamID")

	status := c.Query("status")
	owner := c.Query("owner")
	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	tasks, err := h.followUpUsecase.ListTasks(teamID, optional(status), optional(owner), optional(query), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"followups": tasks,
		"total":     len(tasks),
	})
}

// GetFollowUpByID returns a specific follow-up
// GET /api/followups/:id
func (h *FollowUpHandler) GetFollowUpByID(c *gin.Context) {
	task, err := h.followUpUsecase.GetTask(c.GetString("teamID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// GetFollowUpEvents returns a follow-up's audit log
// GET /api/followups/:id/events
func (h *FollowUpHandler) GetFollowUpEvents(c *gin.Context) {
	events, err := h.followUpUsecase.ListEvents(c.GetString("teamID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ApproveFollowUp schedules a follow-up for sending
// POST /api/followups/:id/approve
func (h *FollowUpHandler) ApproveFollowUp(c *gin.Context) {
	var req usecase.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.followUpUsecase.Approve(c.GetString("teamID"), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// SnoozeFollowUp defers a follow-up
// POST /api/followups/:id/snooze
func (h *FollowUpHandler) SnoozeFollowUp(c *gin.Context) {
	var req SnoozeRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.followUpUsecase.Snooze(c.GetString("teamID"), c.Param("id"), req.Minutes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DismissFollowUp terminally rejects a follow-up
// POST /api/followups/:id/dismiss
func (h *FollowUpHandler) DismissFollowUp(c *gin.Context) {
	var req DismissRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.followUpUsecase.Dismiss(c.GetString("teamID"), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// RegenerateDraft re-generates a follow-up's draft on demand
// POST /api/followups/:id/regenerate
func (h *FollowUpHandler) RegenerateDraft(c *gin.Context) {
	task, err := h.followUpUsecase.Regenerate(c.Request.Context(), c.GetString("teamID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Follow-up not found"})
	case errors.Is(err, usecase.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
	case strings.HasPrefix(err.Error(), "cannot "):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case strings.HasPrefix(err.Error(), "invalid "):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
