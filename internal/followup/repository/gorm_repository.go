package repository

import (
	"errors"
	"time"

	"followup-backend/internal/followup/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormFollowUpRepository implements FollowUpRepository using GORM
type gormFollowUpRepository struct {
	db *gorm.DB
}

// NewGormFollowUpRepository creates a new GORM-based FollowUpRepository
func NewGormFollowUpRepository(db *gorm.DB) FollowUpRepository {
	return &gormFollowUpRepository{db: db}
}

// Upsert runs as a single transaction: the natural-key row is locked, merged
// and written back, so the merge-and-decide-status logic is never observable
// as two separate writes. A concurrent insert on the same key loses against
// the unique index and is retried once as a merge.
func (r *gormFollowUpRepository) Upsert(candidate *domain.Candidate) (*domain.FollowUpTask, bool, error) {
	task, inserted, err := r.tryUpsert(candidate)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a race with a concurrent insert of the same key; the row
		// exists now, so a second pass merges into it.
		task, inserted, err = r.tryUpsert(candidate)
	}
	return task, inserted, err
}

func (r *gormFollowUpRepository) tryUpsert(candidate *domain.Candidate) (*domain.FollowUpTask, bool, error) {
	var task *domain.FollowUpTask
	inserted := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing domain.FollowUpTask
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("team_id = ? AND owner_user_id = ? AND thread_id = ? AND last_message_id = ?",
				candidate.TeamID, candidate.OwnerUserID, candidate.ThreadID, candidate.LastMessageID).
			First(&existing).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			fresh := candidate.NewTask()
			fresh.ID = uuid.New().String()
			fresh.CreatedAt = time.Now()
			fresh.UpdatedAt = time.Now()
			if err := tx.Create(fresh).Error; err != nil {
				return err
			}
			task = fresh
			inserted = true
			return nil
		}
		if err != nil {
			return err
		}

		if existing.ApplyCandidate(candidate) {
			existing.UpdatedAt = time.Now()
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
		}
		task = &existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return task, inserted, nil
}

func (r *gormFollowUpRepository) FindByID(id string) (*domain.FollowUpTask, error) {
	var task domain.FollowUpTask
	err := r.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *gormFollowUpRepository) Update(id string, fields map[string]interface{}) (bool, error) {
	fields["updated_at"] = time.Now()
	result := r.db.Model(&domain.FollowUpTask{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormFollowUpRepository) ListDue(now time.Time, limit int) ([]*domain.FollowUpTask, error) {
	var tasks []*domain.FollowUpTask
	err := r.db.
		Where("status = ? AND suggested_send_at IS NOT NULL AND suggested_send_at <= ?", domain.StatusScheduled, now).
		Order("suggested_send_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *gormFollowUpRepository) ListByTeam(teamID string, status *domain.Status, ownerUserID *string, limit int) ([]*domain.FollowUpTask, error) {
	query := r.db.Where("team_id = ?", teamID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if ownerUserID != nil {
		query = query.Where("owner_user_id = ?", *ownerUserID)
	}

	var tasks []*domain.FollowUpTask
	err := query.
		Order("priority DESC, COALESCE(due_at, created_at) ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *gormFollowUpRepository) AppendEvent(followUpID, eventType string, payload domain.JSONMap) error {
	event := &domain.FollowUpEvent{
		ID:         uuid.New().String(),
		FollowUpID: followUpID,
		EventType:  eventType,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	return r.db.Create(event).Error
}

func (r *gormFollowUpRepository) ListEvents(followUpID string) ([]*domain.FollowUpEvent, error) {
	var events []*domain.FollowUpEvent
	err := r.db.Where("follow_up_id = ?", followUpID).Order("created_at ASC").Find(&events).Error
	return events, err
}
