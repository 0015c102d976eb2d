package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"followup-backend/internal/followup/domain"
	"followup-backend/internal/followup/repository"
	teamrepo "followup-backend/internal/team/repository"
	"followup-backend/pkg/ai"
	"followup-backend/pkg/fuzzy"
)

var (
	ErrNotFound     = errors.New("follow-up not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// followUpUsecase implements FollowUpUsecase
type followUpUsecase struct {
	repo     repository.FollowUpRepository
	teamRepo teamrepo.TeamRepository
	drafts   ai.DraftService
	now      func() time.Time
}

// NewFollowUpUsecase creates a new instance of followUpUsecase
func NewFollowUpUsecase(repo repository.FollowUpRepository, teamRepo teamrepo.TeamRepository, drafts ai.DraftService) FollowUpUsecase {
	return &followUpUsecase{
		repo:     repo,
		teamRepo: teamRepo,
		drafts:   drafts,
		now:      time.Now,
	}
}

func (u *followUpUsecase) ListTasks(teamID string, status, ownerUserID, query *string, limit int) ([]*domain.FollowUpTask, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var statusFilter *domain.Status
	if status != nil && *status != "" {
		s := domain.Status(*status)
		statusFilter = &s
	}
	if ownerUserID != nil && *ownerUserID == "" {
		ownerUserID = nil
	}

	tasks, err := u.repo.ListByTeam(teamID, statusFilter, ownerUserID, limit)
	if err != nil {
		return nil, err
	}

	if query == nil || *query == "" {
		return tasks, nil
	}

	filtered := make([]*domain.FollowUpTask, 0, len(tasks))
	for _, task := range tasks {
		if fuzzy.Match(*query, task.Subject, 2) || fuzzy.Match(*query, task.CounterpartEmail, 2) {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

func (u *followUpUsecase) GetTask(teamID, taskID string) (*domain.FollowUpTask, error) {
	task, err := u.repo.FindByID(taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrNotFound
	}
	if task.TeamID != teamID {
		return nil, ErrUnauthorized
	}
	return task, nil
}

func (u *followUpUsecase) ListEvents(teamID, taskID string) ([]*domain.FollowUpEvent, error) {
	if _, err := u.GetTask(teamID, taskID); err != nil {
		return nil, err
	}
	return u.repo.ListEvents(taskID)
}

func (u *followUpUsecase) Approve(teamID, taskID string, req ApproveRequest) (*domain.FollowUpTask, error) {
	task, err := u.GetTask(teamID, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.Refreshable() && task.Status != domain.StatusError {
		return nil, fmt.Errorf("cannot approve task in status %s", task.Status)
	}

	sendAt := u.now()
	if req.SendAt != nil && *req.SendAt != "" {
		parsed, err := time.Parse(time.RFC3339, *req.SendAt)
		if err != nil {
			return nil, fmt.Errorf("invalid send_at: %v", err)
		}
		sendAt = parsed
	}

	fields := map[string]interface{}{
		"status":            domain.StatusScheduled,
		"suggested_send_at": sendAt,
	}
	if req.DraftSubject != nil {
		fields["draft_subject"] = *req.DraftSubject
	}
	if req.DraftBody != nil {
		fields["draft_body"] = *req.DraftBody
	}

	if _, err := u.repo.Update(task.ID, fields); err != nil {
		return nil, err
	}
	u.appendEvent(task.ID, domain.EventScheduled, domain.JSONMap{"send_at": sendAt})

	return u.repo.FindByID(task.ID)
}

func (u *followUpUsecase) Snooze(teamID, taskID string, minutes int) (*domain.FollowUpTask, error) {
	task, err := u.GetTask(teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("cannot snooze task in status %s", task.Status)
	}
	if minutes <= 0 {
		minutes = 24 * 60
	}

	until := u.now().Add(time.Duration(minutes) * time.Minute)
	fields := map[string]interface{}{
		"status": domain.StatusSnoozed,
		"due_at": until,
	}
	if task.SuggestedSendAt != nil {
		fields["suggested_send_at"] = until
	}

	if _, err := u.repo.Update(task.ID, fields); err != nil {
		return nil, err
	}
	u.appendEvent(task.ID, domain.EventSnoozed, domain.JSONMap{"minutes": minutes, "until": until})

	return u.repo.FindByID(task.ID)
}

func (u *followUpUsecase) Dismiss(teamID, taskID, reason string) (*domain.FollowUpTask, error) {
	task, err := u.GetTask(teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("cannot dismiss task in status %s", task.Status)
	}

	fields := map[string]interface{}{"status": domain.StatusDismissed}
	if _, err := u.repo.Update(task.ID, fields); err != nil {
		return nil, err
	}

	payload := domain.JSONMap{}
	if reason != "" {
		payload["reason"] = reason
	}
	u.appendEvent(task.ID, domain.EventDismissed, payload)

	return u.repo.FindByID(task.ID)
}

func (u *followUpUsecase) Regenerate(ctx context.Context, teamID, taskID string) (*domain.FollowUpTask, error) {
	task, err := u.GetTask(teamID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, fmt.Errorf("cannot regenerate draft for task in status %s", task.Status)
	}

	draft, err := u.drafts.GenerateFollowUp(ctx, ai.DraftRequest{
		SenderName:      u.senderName(teamID, task.OwnerUserID),
		CounterpartName: CounterpartName(task.CounterpartEmail),
		Subject:         task.Subject,
		ContextSummary:  task.Summary,
		Tone:            task.ToneHint,
		IdleDays:        idleDaysFromMetadata(task.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("draft generation failed: %w", err)
	}

	fields := map[string]interface{}{
		"draft_subject":  draft.Subject,
		"draft_body":     draft.Body,
		"tone_hint":      draft.Tone,
		"prompt_version": ai.PromptVersion,
	}
	if _, err := u.repo.Update(task.ID, fields); err != nil {
		return nil, err
	}
	u.appendEvent(task.ID, domain.EventDraftCreated, domain.JSONMap{"regenerated": true, "prompt_version": ai.PromptVersion})

	return u.repo.FindByID(task.ID)
}

// appendEvent records an audit entry; failures are swallowed since the event
// log is observability, not state.
func (u *followUpUsecase) appendEvent(taskID, eventType string, payload domain.JSONMap) {
	_ = u.repo.AppendEvent(taskID, eventType, payload)
}

func (u *followUpUsecase) senderName(teamID, userID string) string {
	members, err := u.teamRepo.ListActiveMembers(teamID)
	if err != nil {
		return ""
	}
	for _, member := range members {
		if member.UserID == userID {
			if member.Name != "" {
				return member.Name
			}
			return CounterpartName(member.Email)
		}
	}
	return ""
}

// CounterpartName derives a human-readable name from an email address
func CounterpartName(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	return strings.TrimSpace(local)
}

func idleDaysFromMetadata(meta domain.JSONMap) int {
	if meta == nil {
		return 0
	}
	switch v := meta["idle_days"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
