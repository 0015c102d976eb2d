package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	maildomain "followup-backend/internal/mail/domain"
)

type fakeMailProvider struct {
	threads map[string][]maildomain.MessageHeader
	order   []string
	failing map[string]bool
	listErr error
}

func (f *fakeMailProvider) ListSentThreads(ctx context.Context, account *maildomain.Account, sinceDays, maxThreads int) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.order, nil
}

func (f *fakeMailProvider) GetThreadHeaders(ctx context.Context, account *maildomain.Account, threadID string) ([]maildomain.MessageHeader, error) {
	if f.failing[threadID] {
		return nil, errors.New("upstream failure")
	}
	return f.threads[threadID], nil
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testAccount() *maildomain.Account {
	return &maildomain.Account{UserID: "user-1", Email: "owner@example.com", Provider: maildomain.ProviderGoogle}
}

func newTestDetector(provider MailProvider) *Detector {
	d := New(provider, 14, 3, 25)
	d.SetClock(func() time.Time { return testNow })
	return d
}

func staleThread() []maildomain.MessageHeader {
	return []maildomain.MessageHeader{
		{
			MessageID: "m1",
			FromEmail: "alice@example.com",
			FromName:  "Alice",
			Subject:   "Proposal",
			Snippet:   "Here is the proposal",
			Date:      testNow.Add(-6 * 24 * time.Hour),
		},
		{
			MessageID: "m2",
			FromEmail: "owner@example.com",
			Subject:   "Re: Proposal",
			Snippet:   "Thanks, reviewing now",
			Date:      testNow.Add(-4 * 24 * time.Hour),
		},
	}
}

func TestScanEmitsCandidateForStaleThread(t *testing.T) {
	provider := &fakeMailProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": staleThread()},
	}

	candidates, err := newTestDetector(provider).Scan(context.Background(), "team-1", testAccount())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	if c.CounterpartEmail != "alice@example.com" {
		t.Errorf("counterpart = %q, want alice@example.com", c.CounterpartEmail)
	}
	if c.LastMessageID != "m2" {
		t.Errorf("last message = %q, want m2", c.LastMessageID)
	}
	if c.Subject != "Re: Proposal" {
		t.Errorf("subject = %q, want last message's subject", c.Subject)
	}
	if c.IdleDays != 4 {
		t.Errorf("idle days = %d, want 4", c.IdleDays)
	}
	if c.Priority != 4 {
		t.Errorf("priority = %d, want idle days", c.Priority)
	}
	if c.TeamID != "team-1" || c.OwnerUserID != "user-1" {
		t.Errorf("candidate not attributed to team/owner: %+v", c)
	}
}

func TestScanSkipsRecentThread(t *testing.T) {
	headers := staleThread()
	headers[1].Date = testNow.Add(-24 * time.Hour) // owner replied yesterday

	provider := &fakeMailProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": headers},
	}

	candidates, err := newTestDetector(provider).Scan(context.Background(), "team-1", testAccount())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("got %d candidates, want 0 for a thread inside the idle window", len(candidates))
	}
}

func TestScanSkipsWhenCounterpartRepliedLast(t *testing.T) {
	headers := []maildomain.MessageHeader{
		{MessageID: "m1", FromEmail: "owner@example.com", Date: testNow.Add(-8 * 24 * time.Hour)},
		{MessageID: "m2", FromEmail: "alice@example.com", Date: testNow.Add(-5 * 24 * time.Hour)},
	}

	provider := &fakeMailProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": headers},
	}

	candidates, _ := newTestDetector(provider).Scan(context.Background(), "team-1", testAccount())
	if len(candidates) != 0 {
		t.Fatal("a thread the counterpart answered is not awaiting a reply")
	}
}

func TestScanSkipsSelfThread(t *testing.T) {
	headers := []maildomain.MessageHeader{
		{MessageID: "m1", FromEmail: "owner@example.com", Date: testNow.Add(-8 * 24 * time.Hour)},
		{MessageID: "m2", FromEmail: "Owner@Example.com", Date: testNow.Add(-5 * 24 * time.Hour)},
	}

	provider := &fakeMailProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": headers},
	}

	candidates, _ := newTestDetector(provider).Scan(context.Background(), "team-1", testAccount())
	if len(candidates) != 0 {
		t.Fatal("notes-to-self must not produce follow-ups")
	}
}

func TestScanSkipsSingleMessageThread(t *testing.T) {
	headers := []maildomain.MessageHeader{
		{MessageID: "m1", FromEmail: "owner@example.com", Date: testNow.Add(-8 * 24 * time.Hour)},
	}

	provider := &fakeMailProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": headers},
	}

	candidates, _ := newTestDetector(provider).Scan(context.Background(), "team-1", testAccount())
	if len(candidates) != 0 {
		t.Fatal("one-message threads have no back-and-forth to follow up")
	}
}

func TestScanIsolatesPerThreadFailures(t *testing.T) {
	provider := &fakeMailProvider{
		order: []string{"bad", "good"},
		threads: map[string][]maildomain.MessageHeader{
			"good": staleThread(),
		},
		failing: map[string]bool{"bad": true},
	}

	candidates, err := newTestDetector(provider).Scan(context.Background(), "team-1", testAccount())
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1; a failing thread must not abort the scan", len(candidates))
	}
}

func TestScanPropagatesListFailure(t *testing.T) {
	provider := &fakeMailProvider{listErr: errors.New("auth expired")}

	if _, err := newTestDetector(provider).Scan(context.Background(), "team-1", testAccount()); err == nil {
		t.Fatal("expected error when the sent-folder listing fails")
	}
}

func TestScanUnsortedHeaders(t *testing.T) {
	headers := staleThread()
	headers[0], headers[1] = headers[1], headers[0]

	provider := &fakeMailProvider{
		order:   []string{"t1"},
		threads: map[string][]maildomain.MessageHeader{"t1": headers},
	}

	candidates, _ := newTestDetector(provider).Scan(context.Background(), "team-1", testAccount())
	if len(candidates) != 1 {
		t.Fatal("detector must order messages by date before evaluating")
	}
	if candidates[0].LastMessageID != "m2" {
		t.Errorf("last message = %q, want m2", candidates[0].LastMessageID)
	}
}
