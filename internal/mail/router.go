package mail

import (
	"context"

	"followup-backend/internal/mail/domain"
)

// Gateway is the full mail capability one provider offers
type Gateway interface {
	ListSentThreads(ctx context.Context, account *domain.Account, sinceDays, maxThreads int) ([]string, error)
	GetThreadHeaders(ctx context.Context, account *domain.Account, threadID string) ([]domain.MessageHeader, error)
	SendMessage(ctx context.Context, account *domain.Account, to, subject, body string) error
}

// Router dispatches mail operations to the provider matching the account.
// Google accounts go through the Gmail API, everything else through IMAP.
type Router struct {
	google Gateway
	imap   Gateway
}

// NewRouter creates a provider router; imap may be nil
func NewRouter(google, imap Gateway) *Router {
	return &Router{google: google, imap: imap}
}

func (r *Router) gateway(account *domain.Account) Gateway {
	if account.Provider == domain.ProviderIMAP && r.imap != nil {
		return r.imap
	}
	return r.google
}

func (r *Router) ListSentThreads(ctx context.Context, account *domain.Account, sinceDays, maxThreads int) ([]string, error) {
	return r.gateway(account).ListSentThreads(ctx, account, sinceDays, maxThreads)
}

func (r *Router) GetThreadHeaders(ctx context.Context, account *domain.Account, threadID string) ([]domain.MessageHeader, error) {
	return r.gateway(account).GetThreadHeaders(ctx, account, threadID)
}

func (r *Router) SendMessage(ctx context.Context, account *domain.Account, to, subject, body string) error {
	return r.gateway(account).SendMessage(ctx, account, to, subject, body)
}
