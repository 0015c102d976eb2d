package domain

// ApplyCandidate merges a re-detected candidate into an existing task and
// reports whether anything changed. The rules mirror the upsert contract:
//
//   - priority never decreases, it is raised to max(existing, incoming)
//   - counterpart/subject/summary take the incoming value when it is non-empty
//   - scheduling and draft fields keep the existing value when already set
//   - status is refreshed to pending only from pending or snoozed; a task
//     already scheduled, dismissed, sent or in error keeps its status
func (t *FollowUpTask) ApplyCandidate(c *Candidate) bool {
	changed := false

	if c.Priority > t.Priority {
		t.Priority = c.Priority
		changed = true
	}
	if c.CounterpartEmail != "" && c.CounterpartEmail != t.CounterpartEmail {
		t.CounterpartEmail = c.CounterpartEmail
		changed = true
	}
	if c.Subject != "" && c.Subject != t.Subject {
		t.Subject = c.Subject
		changed = true
	}
	if c.Summary != "" && c.Summary != t.Summary {
		t.Summary = c.Summary
		changed = true
	}
	if t.Status.Refreshable() {
		if t.Status != StatusPending {
			t.Status = StatusPending
			changed = true
		}
		if meta := c.metadata(); meta != nil {
			t.Metadata = meta
			changed = true
		}
	}

	return changed
}

// NewTask materializes a candidate as a fresh pending task. The ID and
// bookkeeping timestamps are assigned by the repository.
func (c *Candidate) NewTask() *FollowUpTask {
	return &FollowUpTask{
		TeamID:           c.TeamID,
		OwnerUserID:      c.OwnerUserID,
		ThreadID:         c.ThreadID,
		LastMessageID:    c.LastMessageID,
		CounterpartEmail: c.CounterpartEmail,
		Subject:          c.Subject,
		Summary:          c.Summary,
		Status:           StatusPending,
		Priority:         c.Priority,
		Metadata:         c.metadata(),
	}
}

func (c *Candidate) metadata() JSONMap {
	if c.IdleDays == 0 && c.Source == "" {
		return nil
	}
	meta := JSONMap{"idle_days": c.IdleDays}
	if c.Source != "" {
		meta["source"] = c.Source
	}
	if !c.LastMessageDate.IsZero() {
		meta["last_message_date"] = c.LastMessageDate
	}
	return meta
}
