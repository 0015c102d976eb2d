package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"followup-backend/internal/followup/detector"
	"followup-backend/internal/followup/domain"
	maildomain "followup-backend/internal/mail/domain"
	teamdomain "followup-backend/internal/team/domain"
	"followup-backend/pkg/ai"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// fakeRepo is an in-memory FollowUpRepository sharing the production merge
// rules via ApplyCandidate.
type fakeRepo struct {
	mu     sync.Mutex
	tasks  map[string]*domain.FollowUpTask
	events map[string][]*domain.FollowUpEvent
	nextID int

	upsertErr error
	updateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tasks:  make(map[string]*domain.FollowUpTask),
		events: make(map[string][]*domain.FollowUpEvent),
	}
}

func naturalKey(teamID, ownerUserID, threadID, lastMessageID string) string {
	return teamID + "|" + ownerUserID + "|" + threadID + "|" + lastMessageID
}

func (r *fakeRepo) Upsert(c *domain.Candidate) (*domain.FollowUpTask, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return nil, false, r.upsertErr
	}

	key := naturalKey(c.TeamID, c.OwnerUserID, c.ThreadID, c.LastMessageID)
	for _, task := range r.tasks {
		if naturalKey(task.TeamID, task.OwnerUserID, task.ThreadID, task.LastMessageID) == key {
			task.ApplyCandidate(c)
			return task, false, nil
		}
	}

	task := c.NewTask()
	r.nextID++
	task.ID = fmt.Sprintf("task-%d", r.nextID)
	task.CreatedAt = testNow
	task.UpdatedAt = testNow
	r.tasks[task.ID] = task
	return task, true, nil
}

func (r *fakeRepo) FindByID(id string) (*domain.FollowUpTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id], nil
}

func (r *fakeRepo) Update(id string, fields map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return false, r.updateErr
	}
	task, ok := r.tasks[id]
	if !ok {
		return false, nil
	}
	for key, value := range fields {
		switch key {
		case "status":
			task.Status = value.(domain.Status)
		case "draft_subject":
			task.DraftSubject = value.(string)
		case "draft_body":
			task.DraftBody = value.(string)
		case "tone_hint":
			task.ToneHint = value.(string)
		case "prompt_version":
			task.PromptVersion = value.(string)
		case "sent_at":
			t := value.(time.Time)
			task.SentAt = &t
		case "suggested_send_at":
			t := value.(time.Time)
			task.SuggestedSendAt = &t
		case "due_at":
			t := value.(time.Time)
			task.DueAt = &t
		case "metadata":
			task.Metadata = value.(domain.JSONMap)
		}
	}
	return true, nil
}

func (r *fakeRepo) ListDue(now time.Time, limit int) ([]*domain.FollowUpTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]*domain.FollowUpTask, 0)
	for _, task := range r.tasks {
		if task.Status == domain.StatusScheduled && task.SuggestedSendAt != nil && !task.SuggestedSendAt.After(now) {
			due = append(due, task)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].SuggestedSendAt.Before(*due[j].SuggestedSendAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeRepo) ListByTeam(teamID string, status *domain.Status, ownerUserID *string, limit int) ([]*domain.FollowUpTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.FollowUpTask, 0)
	for _, task := range r.tasks {
		if task.TeamID != teamID {
			continue
		}
		if status != nil && task.Status != *status {
			continue
		}
		if ownerUserID != nil && task.OwnerUserID != *ownerUserID {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (r *fakeRepo) AppendEvent(followUpID, eventType string, payload domain.JSONMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[followUpID] = append(r.events[followUpID], &domain.FollowUpEvent{
		FollowUpID: followUpID,
		EventType:  eventType,
		Payload:    payload,
		CreatedAt:  testNow,
	})
	return nil
}

func (r *fakeRepo) ListEvents(followUpID string) ([]*domain.FollowUpEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[followUpID], nil
}

func (r *fakeRepo) eventTypes(followUpID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0)
	for _, e := range r.events[followUpID] {
		types = append(types, e.EventType)
	}
	return types
}

// fakeTeamRepo is a static in-memory team directory
type fakeTeamRepo struct {
	teams    []*teamdomain.Team
	members  map[string][]*teamdomain.TeamMember
	accounts map[string]*maildomain.Account
	tokens   map[string][]string
	deleted  []string
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{
		members:  make(map[string][]*teamdomain.TeamMember),
		accounts: make(map[string]*maildomain.Account),
		tokens:   make(map[string][]string),
	}
}

func (r *fakeTeamRepo) ListActiveTeams() ([]*teamdomain.Team, error) { return r.teams, nil }

func (r *fakeTeamRepo) ListActiveMembers(teamID string) ([]*teamdomain.TeamMember, error) {
	return r.members[teamID], nil
}

func (r *fakeTeamRepo) FindMemberByEmail(email string) (*teamdomain.TeamMember, error) {
	for _, members := range r.members {
		for _, m := range members {
			if m.Email == email {
				return m, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeTeamRepo) ResolveAccount(userID string) (*maildomain.Account, error) {
	return r.accounts[userID], nil
}

func (r *fakeTeamRepo) GetDeviceTokens(userID string) ([]string, error) { return r.tokens[userID], nil }
func (r *fakeTeamRepo) RegisterDeviceToken(userID, token string) error  { return nil }
func (r *fakeTeamRepo) DeleteDeviceToken(token string) error {
	r.deleted = append(r.deleted, token)
	return nil
}

// fakeProvider serves canned sent threads to the detector
type fakeProvider struct {
	threads map[string][]maildomain.MessageHeader
	order   []string
}

func (f *fakeProvider) ListSentThreads(ctx context.Context, account *maildomain.Account, sinceDays, maxThreads int) ([]string, error) {
	return f.order, nil
}

func (f *fakeProvider) GetThreadHeaders(ctx context.Context, account *maildomain.Account, threadID string) ([]maildomain.MessageHeader, error) {
	return f.threads[threadID], nil
}

type fakeDrafts struct {
	calls int
	err   error
}

func (f *fakeDrafts) GenerateFollowUp(ctx context.Context, req ai.DraftRequest) (*ai.Draft, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Draft{
		Subject: "Re: " + req.Subject,
		Body:    "Just checking in about " + req.Subject,
		Tone:    "friendly",
	}, nil
}

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]error
}

func (f *fakeSender) SendMessage(ctx context.Context, account *maildomain.Account, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[to]; ok {
		return err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func staleThread(owner string) []maildomain.MessageHeader {
	return []maildomain.MessageHeader{
		{
			MessageID: "m1",
			FromEmail: "alice@example.com",
			Subject:   "Proposal",
			Snippet:   "Here is the proposal",
			Date:      testNow.Add(-6 * 24 * time.Hour),
		},
		{
			MessageID: "m2",
			FromEmail: owner,
			Subject:   "Re: Proposal",
			Snippet:   "Thanks, reviewing now",
			Date:      testNow.Add(-4 * 24 * time.Hour),
		},
	}
}

type fixture struct {
	repo     *fakeRepo
	teamRepo *fakeTeamRepo
	drafts   *fakeDrafts
	sender   *fakeSender
	sched    *FollowUpScheduler
}

func newFixture(provider detector.MailProvider) *fixture {
	repo := newFakeRepo()
	teamRepo := newFakeTeamRepo()
	drafts := &fakeDrafts{}
	sender := &fakeSender{}

	teamRepo.teams = []*teamdomain.Team{{ID: "team-1", Name: "Team", Active: true}}
	teamRepo.members["team-1"] = []*teamdomain.TeamMember{
		{ID: "mem-1", TeamID: "team-1", UserID: "user-1", Name: "Owner", Email: "owner@example.com", Active: true},
	}
	teamRepo.accounts["user-1"] = &maildomain.Account{
		UserID:   "user-1",
		Email:    "owner@example.com",
		Provider: maildomain.ProviderGoogle,
	}

	det := detector.New(provider, 14, 3, 25)
	sched := NewFollowUpScheduler(repo, teamRepo, det, drafts, sender, nil, Options{})
	sched.SetClock(func() time.Time { return testNow })

	return &fixture{repo: repo, teamRepo: teamRepo, drafts: drafts, sender: sender, sched: sched}
}

func singleTaskID(t *testing.T, repo *fakeRepo) string {
	t.Helper()
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(repo.tasks))
	}
	for id := range repo.tasks {
		return id
	}
	return ""
}

func TestDiscoveryCreatesTaskWithDraft(t *testing.T) {
	fx := newFixture(&fakeProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": staleThread("owner@example.com")},
	})

	if !fx.sched.RunDiscovery() {
		t.Fatal("discovery run was skipped")
	}

	id := singleTaskID(t, fx.repo)
	task, _ := fx.repo.FindByID(id)
	if task.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if !task.HasDraft() {
		t.Error("discovery should attach a draft to a new task")
	}
	if task.PromptVersion != ai.PromptVersion {
		t.Errorf("prompt version = %q, want %q", task.PromptVersion, ai.PromptVersion)
	}

	types := fx.repo.eventTypes(id)
	if len(types) != 2 || types[0] != domain.EventDiscovered || types[1] != domain.EventDraftCreated {
		t.Errorf("events = %v, want [discovered draft_created]", types)
	}
}

func TestDiscoveryIsIdempotent(t *testing.T) {
	fx := newFixture(&fakeProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": staleThread("owner@example.com")},
	})

	fx.sched.RunDiscovery()
	fx.sched.RunDiscovery()

	id := singleTaskID(t, fx.repo)
	if calls := fx.drafts.calls; calls != 1 {
		t.Errorf("draft generated %d times, want 1; existing drafts are kept", calls)
	}
	types := fx.repo.eventTypes(id)
	if len(types) != 2 {
		t.Errorf("re-detection of an unchanged thread must not append events, got %v", types)
	}
}

func TestDiscoverySkipsMembersWithoutMailbox(t *testing.T) {
	fx := newFixture(&fakeProvider{})
	delete(fx.teamRepo.accounts, "user-1")

	fx.sched.RunDiscovery()

	if len(fx.repo.tasks) != 0 {
		t.Error("members without a connected mailbox must be skipped")
	}
}

func TestDiscoveryDraftFailureKeepsTask(t *testing.T) {
	fx := newFixture(&fakeProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": staleThread("owner@example.com")},
	})
	fx.drafts.err = errors.New("model unavailable")

	fx.sched.RunDiscovery()

	id := singleTaskID(t, fx.repo)
	task, _ := fx.repo.FindByID(id)
	if task.HasDraft() {
		t.Error("draft failure should leave the task without a draft")
	}
	types := fx.repo.eventTypes(id)
	if len(types) != 1 || types[0] != domain.EventDiscovered {
		t.Errorf("events = %v, want only [discovered]", types)
	}

	// Next pass retries the draft
	fx.drafts.err = nil
	fx.sched.RunDiscovery()
	task, _ = fx.repo.FindByID(id)
	if !task.HasDraft() {
		t.Error("subsequent discovery should retry the missing draft")
	}
}

func TestRunDiscoverySkipsWhenAlreadyRunning(t *testing.T) {
	fx := newFixture(&fakeProvider{})

	fx.sched.discoveryRunning.Store(true)
	if fx.sched.RunDiscovery() {
		t.Error("a tick overlapping a running discovery pass must be dropped")
	}
	fx.sched.discoveryRunning.Store(false)
	if !fx.sched.RunDiscovery() {
		t.Error("discovery should run once the previous pass finished")
	}
}

func seedScheduled(repo *fakeRepo, id, counterpart string, sendAt time.Time) {
	repo.tasks[id] = &domain.FollowUpTask{
		ID:               id,
		TeamID:           "team-1",
		OwnerUserID:      "user-1",
		ThreadID:         "thread-" + id,
		LastMessageID:    "msg-" + id,
		CounterpartEmail: counterpart,
		Subject:          "Proposal",
		Status:           domain.StatusScheduled,
		DraftSubject:     "Re: Proposal",
		DraftBody:        "Checking in",
		SuggestedSendAt:  &sendAt,
	}
}

func TestDueSendDeliversAndMarksSent(t *testing.T) {
	fx := newFixture(&fakeProvider{})
	seedScheduled(fx.repo, "due-1", "alice@example.com", testNow.Add(-time.Minute))

	if !fx.sched.RunDueSends() {
		t.Fatal("due-send run was skipped")
	}

	if len(fx.sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fx.sender.sent))
	}
	if fx.sender.sent[0].to != "alice@example.com" {
		t.Errorf("sent to %q, want the counterpart", fx.sender.sent[0].to)
	}

	task, _ := fx.repo.FindByID("due-1")
	if task.Status != domain.StatusSent {
		t.Errorf("status = %s, want sent", task.Status)
	}
	if task.SentAt == nil || !task.SentAt.Equal(testNow) {
		t.Errorf("sent_at = %v, want clock time", task.SentAt)
	}
	if types := fx.repo.eventTypes("due-1"); len(types) != 1 || types[0] != domain.EventSent {
		t.Errorf("events = %v, want [sent]", types)
	}
}

func TestDueSendIgnoresFutureTasks(t *testing.T) {
	fx := newFixture(&fakeProvider{})
	seedScheduled(fx.repo, "due-1", "alice@example.com", testNow.Add(time.Hour))

	fx.sched.RunDueSends()

	if len(fx.sender.sent) != 0 {
		t.Error("tasks scheduled for the future must not be sent yet")
	}
	task, _ := fx.repo.FindByID("due-1")
	if task.Status != domain.StatusScheduled {
		t.Errorf("status = %s, want scheduled", task.Status)
	}
}

func TestDueSendIsolatesFailures(t *testing.T) {
	fx := newFixture(&fakeProvider{})
	seedScheduled(fx.repo, "due-1", "a@example.com", testNow.Add(-3*time.Minute))
	seedScheduled(fx.repo, "due-2", "b@example.com", testNow.Add(-2*time.Minute))
	seedScheduled(fx.repo, "due-3", "c@example.com", testNow.Add(-time.Minute))
	fx.sender.failTo = map[string]error{"b@example.com": errors.New("smtp 550")}

	fx.sched.RunDueSends()

	if len(fx.sender.sent) != 2 {
		t.Fatalf("sent %d messages, want 2; one failure must not block the batch", len(fx.sender.sent))
	}

	for id, want := range map[string]domain.Status{
		"due-1": domain.StatusSent,
		"due-2": domain.StatusError,
		"due-3": domain.StatusSent,
	} {
		task, _ := fx.repo.FindByID(id)
		if task.Status != want {
			t.Errorf("task %s status = %s, want %s", id, task.Status, want)
		}
	}

	types := fx.repo.eventTypes("due-2")
	if len(types) != 1 || types[0] != domain.EventError {
		t.Errorf("failed task events = %v, want [error]", types)
	}
}

func TestDueSendErroredTaskNotRetried(t *testing.T) {
	fx := newFixture(&fakeProvider{})
	seedScheduled(fx.repo, "due-1", "a@example.com", testNow.Add(-time.Minute))
	fx.sender.failTo = map[string]error{"a@example.com": errors.New("smtp 550")}

	fx.sched.RunDueSends()
	fx.sender.failTo = nil
	fx.sched.RunDueSends()

	if len(fx.sender.sent) != 0 {
		t.Error("errored tasks require re-approval; they must not be retried automatically")
	}
}

func TestDueSendWithoutDraftErrors(t *testing.T) {
	fx := newFixture(&fakeProvider{})
	seedScheduled(fx.repo, "due-1", "a@example.com", testNow.Add(-time.Minute))
	fx.repo.tasks["due-1"].DraftBody = ""

	fx.sched.RunDueSends()

	if len(fx.sender.sent) != 0 {
		t.Error("a task without draft content must not be sent")
	}
	task, _ := fx.repo.FindByID("due-1")
	if task.Status != domain.StatusError {
		t.Errorf("status = %s, want error", task.Status)
	}
}

func TestDueSendWithoutMailboxErrors(t *testing.T) {
	fx := newFixture(&fakeProvider{})
	seedScheduled(fx.repo, "due-1", "a@example.com", testNow.Add(-time.Minute))
	delete(fx.teamRepo.accounts, "user-1")

	fx.sched.RunDueSends()

	task, _ := fx.repo.FindByID("due-1")
	if task.Status != domain.StatusError {
		t.Errorf("status = %s, want error when the owner has no mailbox", task.Status)
	}
}

func TestDueSendFallsBackToThreadSubject(t *testing.T) {
	fx := newFixture(&fakeProvider{})
	seedScheduled(fx.repo, "due-1", "a@example.com", testNow.Add(-time.Minute))
	fx.repo.tasks["due-1"].DraftSubject = ""

	fx.sched.RunDueSends()

	if len(fx.sender.sent) != 1 {
		t.Fatal("expected the task to be sent")
	}
	if got := fx.sender.sent[0].subject; got != "Re: Proposal" {
		t.Errorf("subject = %q, want thread subject fallback", got)
	}
}
