package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/mail"
	"strings"
	"time"

	maildomain "followup-backend/internal/mail/domain"

	gomessagemail "github.com/emersion/go-message/mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = maildomain.TokenUpdateFunc

type Service struct {
	clientID     string
	clientSecret string
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// getGmailService creates a Gmail client for one account, refreshing the
// OAuth token when needed and reporting rotations through the account's
// OnTokenRefresh callback.
func (s *Service) getGmailService(ctx context.Context, account *maildomain.Account) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if account.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: account.OnTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	return srv, nil
}

// ListSentThreads returns IDs of threads with sent messages inside the
// lookback window, newest first, capped at maxThreads
func (s *Service) ListSentThreads(ctx context.Context, account *maildomain.Account, sinceDays, maxThreads int) ([]string, error) {
	srv, err := s.getGmailService(ctx, account)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("in:sent newer_than:%dd", sinceDays)
	resp, err := srv.Users.Threads.List("me").
		Q(query).
		MaxResults(int64(maxThreads)).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list sent threads: %v", err)
	}

	threadIDs := make([]string, 0, len(resp.Threads))
	for _, thread := range resp.Threads {
		threadIDs = append(threadIDs, thread.Id)
	}
	return threadIDs, nil
}

// GetThreadHeaders fetches header-only metadata for every message in a thread
func (s *Service) GetThreadHeaders(ctx context.Context, account *maildomain.Account, threadID string) ([]maildomain.MessageHeader, error) {
	srv, err := s.getGmailService(ctx, account)
	if err != nil {
		return nil, err
	}

	thread, err := srv.Users.Threads.Get("me", threadID).
		Format("metadata").
		MetadataHeaders("From", "To", "Subject", "Date").
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve thread %s: %v", threadID, err)
	}

	headers := make([]maildomain.MessageHeader, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		if msg.Payload == nil {
			continue
		}

		fromName, fromEmail := parseAddress(getHeader(msg.Payload.Headers, "From"))
		headers = append(headers, maildomain.MessageHeader{
			MessageID: msg.Id,
			ThreadID:  threadID,
			FromName:  fromName,
			FromEmail: fromEmail,
			To:        getHeader(msg.Payload.Headers, "To"),
			Subject:   getHeader(msg.Payload.Headers, "Subject"),
			Snippet:   msg.Snippet,
			Date:      time.UnixMilli(msg.InternalDate),
		})
	}

	return headers, nil
}

// SendMessage sends a plain-text message from the account's address
func (s *Service) SendMessage(ctx context.Context, account *maildomain.Account, to, subject, body string) error {
	srv, err := s.getGmailService(ctx, account)
	if err != nil {
		return err
	}

	raw, err := buildRawMessage(account.Email, to, subject, body)
	if err != nil {
		return fmt.Errorf("unable to build message: %v", err)
	}

	_, err = srv.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Do()
	if err != nil {
		return fmt.Errorf("unable to send message: %v", err)
	}

	return nil
}

// Watch registers the account's mailbox for Pub/Sub push notifications
func (s *Service) Watch(ctx context.Context, account *maildomain.Account, topicName string) error {
	srv, err := s.getGmailService(ctx, account)
	if err != nil {
		return err
	}

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"SENT", "INBOX"},
	}
	resp, err := srv.Users.Watch("me", req).Do()
	if err != nil {
		return fmt.Errorf("unable to start watch: %v", err)
	}

	log.Printf("[Gmail] Watch registered for %s (historyId: %d, expires: %d)", account.Email, resp.HistoryId, resp.Expiration)
	return nil
}

// Stop removes the account's Pub/Sub watch
func (s *Service) Stop(ctx context.Context, account *maildomain.Account) error {
	srv, err := s.getGmailService(ctx, account)
	if err != nil {
		return err
	}

	if err := srv.Users.Stop("me").Do(); err != nil {
		return fmt.Errorf("unable to stop watch: %v", err)
	}
	return nil
}

// buildRawMessage renders an RFC 5322 message for the Gmail raw-send API
func buildRawMessage(from, to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var header gomessagemail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*gomessagemail.Address{{Address: from}})
	header.SetAddressList("To", []*gomessagemail.Address{{Address: to}})
	header.SetSubject(subject)

	writer, err := gomessagemail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(writer, body); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// parseAddress splits a From header into display name and lowercased address
func parseAddress(raw string) (name, email string) {
	if raw == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		// Bare address without display name
		return "", strings.ToLower(strings.TrimSpace(raw))
	}
	return addr.Name, strings.ToLower(addr.Address)
}
