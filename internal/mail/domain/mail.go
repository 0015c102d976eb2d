package domain

import (
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is called when a provider refreshes an OAuth token so the
// new token can be persisted
type TokenUpdateFunc func(token *oauth2.Token) error

// Account providers
const (
	ProviderGoogle = "google"
	ProviderIMAP   = "imap"
)

// Account is a resolved mail account for one team member
type Account struct {
	UserID       string
	Email        string
	Provider     string
	AccessToken  string
	RefreshToken string

	// IMAP credentials (Provider == "imap")
	IMAPHost     string
	IMAPUsername string
	IMAPPassword string

	OnTokenRefresh TokenUpdateFunc
}

// MessageHeader is header-only metadata for one message in a thread
type MessageHeader struct {
	MessageID string
	ThreadID  string
	FromName  string
	FromEmail string
	To        string
	Subject   string
	Snippet   string
	Date      time.Time
}
