package domain

import "time"

// Team is a billing/organization unit whose members share a follow-up board
type Team struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	Active    bool      `json:"active" gorm:"default:true;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamMember links a user to a team
type TeamMember struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	TeamID    string    `json:"team_id" gorm:"index;not null"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	Name      string    `json:"name"`
	Email     string    `json:"email" gorm:"index"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MailAccount holds a member's linked mailbox credentials. A member without a
// row here has not connected a mailbox and is skipped by discovery.
type MailAccount struct {
	ID           string `json:"id" gorm:"primaryKey"`
	UserID       string `json:"user_id" gorm:"uniqueIndex;not null"`
	Email        string `json:"email" gorm:"not null"`
	Provider     string `json:"provider" gorm:"default:google"`
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	// IMAP credentials (provider == "imap")
	IMAPHost     string `json:"-"`
	IMAPUsername string `json:"-"`
	IMAPPassword string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceToken is an FCM registration token for one of a member's devices
type DeviceToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}
