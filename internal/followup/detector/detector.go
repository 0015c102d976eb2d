package detector

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"followup-backend/internal/followup/domain"
	maildomain "followup-backend/internal/mail/domain"
)

// MailProvider defines the mail operations the detector needs. Implemented by
// pkg/gmail and pkg/imap.
type MailProvider interface {
	// ListSentThreads returns thread IDs from the sent folder, newest first
	ListSentThreads(ctx context.Context, account *maildomain.Account, sinceDays, maxThreads int) ([]string, error)

	// GetThreadHeaders returns header-only metadata for every message in a thread
	GetThreadHeaders(ctx context.Context, account *maildomain.Account, threadID string) ([]maildomain.MessageHeader, error)
}

// Detector walks a member's recent sent threads and emits follow-up
// candidates for conversations that are awaiting a reply and have gone idle.
// It is stateless and safe to run repeatedly; deduplication of repeated
// detections happens in the task store's natural-key upsert.
type Detector struct {
	provider     MailProvider
	lookbackDays int
	idleDays     int
	maxThreads   int
	now          func() time.Time
}

// New creates a Detector. lookbackDays, idleDays and maxThreads fall back to
// 14, 3 and 25 when zero.
func New(provider MailProvider, lookbackDays, idleDays, maxThreads int) *Detector {
	if lookbackDays <= 0 {
		lookbackDays = 14
	}
	if idleDays <= 0 {
		idleDays = 3
	}
	if maxThreads <= 0 {
		maxThreads = 25
	}
	return &Detector{
		provider:     provider,
		lookbackDays: lookbackDays,
		idleDays:     idleDays,
		maxThreads:   maxThreads,
		now:          time.Now,
	}
}

// SetClock overrides the wall clock, used by tests to pin idle-time boundaries.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// Scan detects follow-up candidates for one mail account. A header lookup
// failing for an individual thread is logged and skipped; it never aborts the
// remaining threads.
func (d *Detector) Scan(ctx context.Context, teamID string, account *maildomain.Account) ([]*domain.Candidate, error) {
	threadIDs, err := d.provider.ListSentThreads(ctx, account, d.lookbackDays, d.maxThreads)
	if err != nil {
		return nil, err
	}

	candidates := make([]*domain.Candidate, 0)
	for _, threadID := range threadIDs {
		headers, err := d.provider.GetThreadHeaders(ctx, account, threadID)
		if err != nil {
			log.Printf("[Detector] Failed to fetch headers for thread %s (user %s): %v", threadID, account.UserID, err)
			continue
		}

		if candidate := d.evaluate(teamID, account, threadID, headers); candidate != nil {
			candidates = append(candidates, candidate)
		}
	}

	return candidates, nil
}

// evaluate applies the idle-reply heuristic to one thread's headers and
// returns a candidate, or nil when the thread needs no follow-up.
func (d *Detector) evaluate(teamID string, account *maildomain.Account, threadID string, headers []maildomain.MessageHeader) *domain.Candidate {
	// No back-and-forth to follow up on
	if len(headers) < 2 {
		return nil
	}

	sorted := make([]maildomain.MessageHeader, len(headers))
	copy(sorted, headers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	last := sorted[len(sorted)-1]
	prev := sorted[len(sorted)-2]

	idle := d.now().Sub(last.Date)
	if idle < time.Duration(d.idleDays)*24*time.Hour {
		return nil // not yet stale
	}

	// Only threads where the owner spoke last are awaiting a reply
	if !strings.EqualFold(last.FromEmail, account.Email) {
		return nil
	}

	counterpart := strings.ToLower(strings.TrimSpace(prev.FromEmail))
	if counterpart == "" || strings.EqualFold(counterpart, account.Email) {
		return nil
	}

	subject := last.Subject
	if subject == "" {
		subject = prev.Subject
	}
	summary := last.Snippet
	if summary == "" {
		summary = prev.Snippet
	}

	idleDays := int(idle.Hours() / 24)
	return &domain.Candidate{
		TeamID:           teamID,
		OwnerUserID:      account.UserID,
		ThreadID:         threadID,
		LastMessageID:    last.MessageID,
		CounterpartEmail: counterpart,
		Subject:          subject,
		Summary:          summary,
		Priority:         idleDays,
		LastMessageDate:  last.Date,
		IdleDays:         idleDays,
		Source:           "sent_scan",
	}
}
