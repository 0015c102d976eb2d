package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Status represents the current state of a follow-up task
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusSnoozed   Status = "snoozed"
	StatusDismissed Status = "dismissed"
	StatusSent      Status = "sent"
	StatusError     Status = "error"
)

// Terminal reports whether a status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusDismissed
}

// Refreshable reports whether a re-detection of the same thread may refresh
// the task. Tasks already scheduled, sent, dismissed or in error keep their
// state regardless of new detections.
func (s Status) Refreshable() bool {
	return s == StatusPending || s == StatusSnoozed
}

// Event types recorded in the follow-up audit log
const (
	EventDiscovered   = "discovered"
	EventDraftCreated = "draft_created"
	EventScheduled    = "scheduled"
	EventSnoozed      = "snoozed"
	EventDismissed    = "dismissed"
	EventSent         = "sent"
	EventError        = "error"
)

// JSONMap stores opaque structured annotations as a JSON column
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	return json.Unmarshal(data, m)
}

// FollowUpTask represents one detected or user-managed follow-up opportunity.
// A task is uniquely identified by (team_id, owner_user_id, thread_id,
// last_message_id); re-detections of the same thread merge into the existing
// row instead of creating a new one.
type FollowUpTask struct {
	ID            string `json:"id" gorm:"primaryKey"`
	TeamID        string `json:"team_id" gorm:"index;uniqueIndex:idx_followup_natural_key;not null"`
	OwnerUserID   string `json:"owner_user_id" gorm:"index;uniqueIndex:idx_followup_natural_key;not null"`
	ThreadID      string `json:"thread_id" gorm:"uniqueIndex:idx_followup_natural_key;not null"`
	LastMessageID string `json:"last_message_id" gorm:"uniqueIndex:idx_followup_natural_key;not null"`

	CounterpartEmail string `json:"counterpart_email"`
	Subject          string `json:"subject"`
	Summary          string `json:"summary" gorm:"type:text"`

	Status   Status `json:"status" gorm:"index;default:pending"`
	Priority int    `json:"priority"`

	DueAt           *time.Time `json:"due_at,omitempty"`
	SuggestedSendAt *time.Time `json:"suggested_send_at,omitempty" gorm:"index"`

	DraftSubject  string `json:"draft_subject,omitempty"`
	DraftBody     string `json:"draft_body,omitempty" gorm:"type:text"`
	ToneHint      string `json:"tone_hint,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`

	Metadata JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`

	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (FollowUpTask) TableName() string {
	return "follow_up_tasks"
}

// HasDraft reports whether draft content has been attached.
func (t *FollowUpTask) HasDraft() bool {
	return t.DraftBody != ""
}

// FollowUpEvent is an append-only audit record for a task. Events are written
// whenever a task's status or draft changes and are never mutated or deleted;
// the task row itself remains the source of truth for current state.
type FollowUpEvent struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	FollowUpID string    `json:"follow_up_id" gorm:"index;not null"`
	EventType  string    `json:"event_type" gorm:"not null"`
	Payload    JSONMap   `json:"payload,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (FollowUpEvent) TableName() string {
	return "follow_up_events"
}

// Candidate is a detector-produced, not-yet-persisted follow-up opportunity.
type Candidate struct {
	TeamID           string
	OwnerUserID      string
	ThreadID         string
	LastMessageID    string
	CounterpartEmail string
	Subject          string
	Summary          string
	Priority         int
	LastMessageDate  time.Time
	IdleDays         int
	Source           string
}
