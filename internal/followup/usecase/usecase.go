package usecase

import (
	"context"

	"followup-backend/internal/followup/domain"
)

// FollowUpUsecase defines the business operations the API layer exposes over
// follow-up tasks
type FollowUpUsecase interface {
	// ListTasks returns a team's tasks with optional status/owner filters and
	// a fuzzy text filter over subject and counterpart
	ListTasks(teamID string, status, ownerUserID, query *string, limit int) ([]*domain.FollowUpTask, error)

	// GetTask retrieves one task (with team ownership check)
	GetTask(teamID, taskID string) (*domain.FollowUpTask, error)

	// ListEvents returns a task's audit log, oldest first
	ListEvents(teamID, taskID string) ([]*domain.FollowUpEvent, error)

	// Approve transitions a pending/snoozed task to scheduled, optionally
	// overriding the draft. An empty send time schedules it immediately.
	Approve(teamID, taskID string, req ApproveRequest) (*domain.FollowUpTask, error)

	// Snooze defers a non-terminal task by pushing its due and send times
	Snooze(teamID, taskID string, minutes int) (*domain.FollowUpTask, error)

	// Dismiss terminally rejects a task
	Dismiss(teamID, taskID, reason string) (*domain.FollowUpTask, error)

	// Regenerate re-invokes the draft generator and overwrites draft fields
	Regenerate(ctx context.Context, teamID, taskID string) (*domain.FollowUpTask, error)
}

// ApproveRequest carries the optional schedule time and draft overrides
type ApproveRequest struct {
	SendAt       *string `json:"send_at,omitempty"`
	DraftSubject *string `json:"draft_subject,omitempty"`
	DraftBody    *string `json:"draft_body,omitempty"`
}
