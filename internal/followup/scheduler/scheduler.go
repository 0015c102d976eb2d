package scheduler

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"followup-backend/internal/followup/detector"
	"followup-backend/internal/followup/domain"
	"followup-backend/internal/followup/repository"
	maildomain "followup-backend/internal/mail/domain"
	teamdomain "followup-backend/internal/team/domain"
	teamrepo "followup-backend/internal/team/repository"
	"followup-backend/pkg/ai"
	"followup-backend/pkg/fcm"
)

// Sender delivers one outbound follow-up message
type Sender interface {
	SendMessage(ctx context.Context, account *maildomain.Account, to, subject, body string) error
}

// FollowUpScheduler runs the two periodic engine jobs: discovery (scan sent
// mail, materialize candidates, attach drafts) and due-send (deliver
// scheduled tasks whose send time has arrived). Each job holds its own
// run-flag so a slow run is never re-entered by the next timer tick; the
// extra tick is dropped, not queued. The two jobs tick independently and may
// overlap with each other.
type FollowUpScheduler struct {
	repo     repository.FollowUpRepository
	teamRepo teamrepo.TeamRepository
	det      *detector.Detector
	drafts   ai.DraftService
	sender   Sender

	fcmClient *fcm.Client // optional, nil disables pushes

	discoveryInterval time.Duration
	dueSendInterval   time.Duration
	batchSize         int

	discoveryRunning atomic.Bool
	dueSendRunning   atomic.Bool

	stopChan chan struct{}
	now      func() time.Time
}

// Options carries the scheduler's timing knobs
type Options struct {
	DiscoveryInterval time.Duration
	DueSendInterval   time.Duration
	DueSendBatchSize  int
}

// NewFollowUpScheduler creates a new scheduler
func NewFollowUpScheduler(
	repo repository.FollowUpRepository,
	teamRepo teamrepo.TeamRepository,
	det *detector.Detector,
	drafts ai.DraftService,
	sender Sender,
	fcmClient *fcm.Client,
	opts Options,
) *FollowUpScheduler {
	if opts.DiscoveryInterval <= 0 {
		opts.DiscoveryInterval = 30 * time.Minute
	}
	if opts.DueSendInterval <= 0 {
		opts.DueSendInterval = 5 * time.Minute
	}
	if opts.DueSendBatchSize <= 0 {
		opts.DueSendBatchSize = 20
	}
	return &FollowUpScheduler{
		repo:              repo,
		teamRepo:          teamRepo,
		det:               det,
		drafts:            drafts,
		sender:            sender,
		fcmClient:         fcmClient,
		discoveryInterval: opts.DiscoveryInterval,
		dueSendInterval:   opts.DueSendInterval,
		batchSize:         opts.DueSendBatchSize,
		stopChan:          make(chan struct{}),
		now:               time.Now,
	}
}

// SetClock overrides the wall clock, used by tests
func (s *FollowUpScheduler) SetClock(now func() time.Time) {
	s.now = now
	s.det.SetClock(now)
}

// Start launches both job loops. Each job runs once immediately, then on its
// own interval.
func (s *FollowUpScheduler) Start() {
	log.Printf("[Scheduler] Starting follow-up scheduler (discovery: %s, due-send: %s)", s.discoveryInterval, s.dueSendInterval)

	go s.loop(s.discoveryInterval, s.RunDiscovery)
	go s.loop(s.dueSendInterval, s.RunDueSends)
}

// Stop gracefully stops both job loops
func (s *FollowUpScheduler) Stop() {
	close(s.stopChan)
}

func (s *FollowUpScheduler) loop(interval time.Duration, job func() bool) {
	job()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			job()
		case <-s.stopChan:
			return
		}
	}
}

// RunDiscovery executes one discovery pass over every active team and member.
// Returns false when a previous pass is still in flight and this tick was
// skipped.
func (s *FollowUpScheduler) RunDiscovery() bool {
	if !s.discoveryRunning.CompareAndSwap(false, true) {
		log.Println("[Scheduler] Discovery still running, skipping tick")
		return false
	}
	defer s.discoveryRunning.Store(false)

	ctx := context.Background()

	teams, err := s.teamRepo.ListActiveTeams()
	if err != nil {
		log.Printf("[Scheduler] Failed to list teams, aborting discovery run: %v", err)
		return true
	}

	for _, team := range teams {
		members, err := s.teamRepo.ListActiveMembers(team.ID)
		if err != nil {
			log.Printf("[Scheduler] Failed to list members for team %s: %v", team.ID, err)
			continue
		}
		for _, member := range members {
			s.DiscoverMember(ctx, team.ID, member)
		}
	}
	return true
}

// DiscoverMember runs detection and draft attachment for a single member.
// Also invoked directly by the Pub/Sub listener for targeted refreshes. A
// failure on one candidate is logged and does not abort the rest.
func (s *FollowUpScheduler) DiscoverMember(ctx context.Context, teamID string, member *teamdomain.TeamMember) {
	account, err := s.teamRepo.ResolveAccount(member.UserID)
	if err != nil {
		log.Printf("[Scheduler] Failed to resolve account for user %s: %v", member.UserID, err)
		return
	}
	if account == nil {
		// Member has not connected a mailbox
		return
	}

	candidates, err := s.det.Scan(ctx, teamID, account)
	if err != nil {
		log.Printf("[Scheduler] Detection failed for user %s: %v", member.UserID, err)
		return
	}

	for _, candidate := range candidates {
		task, inserted, err := s.repo.Upsert(candidate)
		if err != nil {
			// Dropped for this run; the next discovery cycle retries the
			// same natural key.
			log.Printf("[Scheduler] Failed to persist candidate (thread %s): %v", candidate.ThreadID, err)
			continue
		}

		if inserted {
			_ = s.repo.AppendEvent(task.ID, domain.EventDiscovered, domain.JSONMap{
				"thread_id": candidate.ThreadID,
				"idle_days": candidate.IdleDays,
			})
		}

		if inserted || !task.HasDraft() {
			s.attachDraft(ctx, member, task, candidate)
		}
	}
}

// attachDraft generates and persists a draft for a task that has none
func (s *FollowUpScheduler) attachDraft(ctx context.Context, member *teamdomain.TeamMember, task *domain.FollowUpTask, candidate *domain.Candidate) {
	senderName := member.Name
	if senderName == "" {
		senderName = localPart(member.Email)
	}

	draft, err := s.drafts.GenerateFollowUp(ctx, ai.DraftRequest{
		SenderName:      senderName,
		CounterpartName: localPart(task.CounterpartEmail),
		Subject:         task.Subject,
		ContextSummary:  task.Summary,
		IdleDays:        candidate.IdleDays,
	})
	if err != nil {
		// Task stays persisted without a draft; the next run retries.
		log.Printf("[Scheduler] Draft generation failed for task %s: %v", task.ID, err)
		return
	}

	changed, err := s.repo.Update(task.ID, map[string]interface{}{
		"draft_subject":  draft.Subject,
		"draft_body":     draft.Body,
		"tone_hint":      draft.Tone,
		"prompt_version": ai.PromptVersion,
	})
	if err != nil {
		log.Printf("[Scheduler] Failed to save draft for task %s: %v", task.ID, err)
		return
	}
	if changed {
		_ = s.repo.AppendEvent(task.ID, domain.EventDraftCreated, domain.JSONMap{"prompt_version": ai.PromptVersion})
		s.notifyDraftReady(ctx, member, task, draft)
	}
}

// notifyDraftReady pushes an FCM notification to the member's devices
func (s *FollowUpScheduler) notifyDraftReady(ctx context.Context, member *teamdomain.TeamMember, task *domain.FollowUpTask, draft *ai.Draft) {
	if s.fcmClient == nil {
		return
	}

	tokens, err := s.teamRepo.GetDeviceTokens(member.UserID)
	if err != nil {
		log.Printf("[Scheduler] Failed to load device tokens for user %s: %v", member.UserID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	notification := fcm.NotificationData{
		Title: "Follow-up ready: " + task.Subject,
		Body:  "A draft is waiting for " + task.CounterpartEmail,
		Data: map[string]string{
			"type":         "followup_draft",
			"follow_up_id": task.ID,
			"click_action": "/followups",
		},
	}

	failedTokens, err := s.fcmClient.SendToDevices(ctx, tokens, notification)
	if err != nil {
		log.Printf("[Scheduler] Failed to push draft notification for task %s: %v", task.ID, err)
		return
	}
	for _, token := range failedTokens {
		_ = s.teamRepo.DeleteDeviceToken(token)
	}
}

// RunDueSends executes one due-send pass. Returns false when a previous pass
// is still in flight and this tick was skipped.
func (s *FollowUpScheduler) RunDueSends() bool {
	if !s.dueSendRunning.CompareAndSwap(false, true) {
		log.Println("[Scheduler] Due-send still running, skipping tick")
		return false
	}
	defer s.dueSendRunning.Store(false)

	ctx := context.Background()

	tasks, err := s.repo.ListDue(s.now(), s.batchSize)
	if err != nil {
		log.Printf("[Scheduler] Failed to list due tasks: %v", err)
		return true
	}
	if len(tasks) == 0 {
		return true
	}

	log.Printf("[Scheduler] Processing %d due follow-ups", len(tasks))
	for _, task := range tasks {
		s.sendDue(ctx, task)
	}
	return true
}

// sendDue attempts delivery of one due task. The outcome is isolated: a
// failure transitions only this task to error and never blocks the rest of
// the batch. Failed sends are not retried automatically; the task must be
// re-approved.
func (s *FollowUpScheduler) sendDue(ctx context.Context, task *domain.FollowUpTask) {
	account, err := s.teamRepo.ResolveAccount(task.OwnerUserID)
	if err == nil && account == nil {
		err = errNoMailbox
	}
	if err != nil {
		s.markSendFailed(task, err)
		return
	}

	subject := task.DraftSubject
	if subject == "" {
		subject = "Re: " + task.Subject
	}
	body := task.DraftBody
	if body == "" {
		s.markSendFailed(task, errNoDraft)
		return
	}

	if err := s.sender.SendMessage(ctx, account, task.CounterpartEmail, subject, body); err != nil {
		s.markSendFailed(task, err)
		return
	}

	sentAt := s.now()
	if _, err := s.repo.Update(task.ID, map[string]interface{}{
		"status":  domain.StatusSent,
		"sent_at": sentAt,
	}); err != nil {
		log.Printf("[Scheduler] Sent task %s but failed to record it: %v", task.ID, err)
		return
	}
	_ = s.repo.AppendEvent(task.ID, domain.EventSent, domain.JSONMap{
		"to":      task.CounterpartEmail,
		"sent_at": sentAt,
	})
	log.Printf("[Scheduler] Sent follow-up %s to %s", task.ID, task.CounterpartEmail)
}

func (s *FollowUpScheduler) markSendFailed(task *domain.FollowUpTask, cause error) {
	log.Printf("[Scheduler] Delivery failed for task %s: %v", task.ID, cause)
	if _, err := s.repo.Update(task.ID, map[string]interface{}{
		"status": domain.StatusError,
	}); err != nil {
		log.Printf("[Scheduler] Failed to mark task %s as errored: %v", task.ID, err)
		return
	}
	_ = s.repo.AppendEvent(task.ID, domain.EventError, domain.JSONMap{"message": cause.Error()})
}

var (
	errNoMailbox = &sendError{"mailbox not connected"}
	errNoDraft   = &sendError{"no draft content to send"}
)

type sendError struct{ msg string }

func (e *sendError) Error() string { return e.msg }

func localPart(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}
	return strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
}
