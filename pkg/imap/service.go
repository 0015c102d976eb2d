package imap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	maildomain "followup-backend/internal/mail/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// sentMailboxes are tried in order; servers disagree on the sent folder name
var sentMailboxes = []string{"Sent", "Sent Items", "Sent Messages", "[Gmail]/Sent Mail", "INBOX.Sent"}

// Service is a read-only MailProvider for plain IMAP accounts. IMAP has no
// native thread objects, so messages from the sent folder are grouped into
// pseudo-threads by normalized subject; the grouped headers are cached per
// scan so GetThreadHeaders does not reconnect per thread.
//
// Sending is not supported: outbound delivery goes through the Gmail API, so
// IMAP-only members get detection and drafting but must connect a Google
// account to send.
type Service struct {
	mu      sync.Mutex
	threads map[string][]maildomain.MessageHeader
}

// NewService creates a new IMAP service
func NewService() *Service {
	return &Service{
		threads: make(map[string][]maildomain.MessageHeader),
	}
}

// ListSentThreads scans the account's sent folder and returns pseudo-thread
// IDs, most recently active first
func (s *Service) ListSentThreads(ctx context.Context, account *maildomain.Account, sinceDays, maxThreads int) ([]string, error) {
	headers, err := s.fetchSentHeaders(account, sinceDays)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]maildomain.MessageHeader)
	for _, h := range headers {
		key := threadKey(account.UserID, h.Subject)
		h.ThreadID = key
		groups[key] = append(groups[key], h)
	}

	type threadInfo struct {
		id     string
		latest time.Time
	}
	infos := make([]threadInfo, 0, len(groups))

	s.mu.Lock()
	for key, msgs := range groups {
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].Date.Before(msgs[j].Date) })
		s.threads[key] = msgs
		infos = append(infos, threadInfo{id: key, latest: msgs[len(msgs)-1].Date})
	}
	s.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].latest.After(infos[j].latest) })
	if len(infos) > maxThreads {
		infos = infos[:maxThreads]
	}

	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.id)
	}
	return ids, nil
}

// GetThreadHeaders returns the cached headers for a pseudo-thread produced by
// the most recent ListSentThreads call
func (s *Service) GetThreadHeaders(ctx context.Context, account *maildomain.Account, threadID string) ([]maildomain.MessageHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	headers, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("unknown thread %s", threadID)
	}
	return headers, nil
}

// SendMessage implements the sender contract but IMAP cannot deliver mail
func (s *Service) SendMessage(ctx context.Context, account *maildomain.Account, to, subject, body string) error {
	return errors.New("imap accounts cannot send mail; connect a Google account")
}

func (s *Service) fetchSentHeaders(account *maildomain.Account, sinceDays int) ([]maildomain.MessageHeader, error) {
	c, err := client.DialTLS(account.IMAPHost, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial failed: %w", err)
	}
	defer c.Logout()

	if err := c.Login(account.IMAPUsername, account.IMAPPassword); err != nil {
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	var selected string
	for _, name := range sentMailboxes {
		if _, err := c.Select(name, true); err == nil {
			selected = name
			break
		}
	}
	if selected == "" {
		return nil, errors.New("no sent mailbox found")
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().AddDate(0, 0, -sinceDays)
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search failed: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	var headers []maildomain.MessageHeader
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		fromName, fromEmail := envelopeFrom(msg.Envelope)
		headers = append(headers, maildomain.MessageHeader{
			MessageID: msg.Envelope.MessageId,
			FromName:  fromName,
			FromEmail: fromEmail,
			To:        envelopeTo(msg.Envelope),
			Subject:   msg.Envelope.Subject,
			Date:      msg.Envelope.Date,
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}

	return headers, nil
}

func envelopeFrom(env *imap.Envelope) (name, email string) {
	if len(env.From) == 0 {
		return "", ""
	}
	addr := env.From[0]
	return addr.PersonalName, strings.ToLower(addr.Address())
}

func envelopeTo(env *imap.Envelope) string {
	if len(env.To) == 0 {
		return ""
	}
	return strings.ToLower(env.To[0].Address())
}

// threadKey normalizes a subject into a pseudo-thread identifier, stripping
// reply/forward prefixes so "Re: Foo" and "Foo" land in the same thread
func threadKey(userID, subject string) string {
	normalized := strings.ToLower(strings.TrimSpace(subject))
	for {
		trimmed := normalized
		for _, prefix := range []string{"re:", "fwd:", "fw:"} {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
		if trimmed == normalized {
			break
		}
		normalized = trimmed
	}
	return "imap:" + userID + ":" + normalized
}
