package repository

import (
	"time"

	"followup-backend/internal/followup/domain"
)

// FollowUpRepository defines the interface for follow-up task data access
type FollowUpRepository interface {
	// Upsert inserts a candidate as a new task, or merges it into the
	// existing row sharing its natural key. The returned bool is true for a
	// fresh insert; callers use it to decide whether to generate a draft.
	Upsert(candidate *domain.Candidate) (*domain.FollowUpTask, bool, error)

	// FindByID finds a task by its ID
	FindByID(id string) (*domain.FollowUpTask, error)

	// Update applies a partial update to a task. Setting "metadata" replaces
	// it wholesale. Returns true iff a row changed.
	Update(id string, fields map[string]interface{}) (bool, error)

	// ListDue returns scheduled tasks whose suggested send time has arrived,
	// ordered by suggested_send_at ascending, capped at limit
	ListDue(now time.Time, limit int) ([]*domain.FollowUpTask, error)

	// ListByTeam returns a team's tasks ordered by priority descending then
	// due date (creation date when unset) ascending, with optional filters
	ListByTeam(teamID string, status *domain.Status, ownerUserID *string, limit int) ([]*domain.FollowUpTask, error)

	// AppendEvent writes an audit record for a task
	AppendEvent(followUpID, eventType string, payload domain.JSONMap) error

	// ListEvents returns a task's audit records, oldest first
	ListEvents(followUpID string) ([]*domain.FollowUpEvent, error)
}
