package repository

import (
	"errors"
	"log"
	"time"

	maildomain "followup-backend/internal/mail/domain"
	teamdomain "followup-backend/internal/team/domain"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// TeamRepository is the team/membership directory consumed by the scheduler
// and the notification listener
type TeamRepository interface {
	ListActiveTeams() ([]*teamdomain.Team, error)
	ListActiveMembers(teamID string) ([]*teamdomain.TeamMember, error)

	// FindMemberByEmail locates the member owning a mailbox address
	FindMemberByEmail(email string) (*teamdomain.TeamMember, error)

	// ResolveAccount returns the member's linked mail account, or nil when no
	// mailbox is connected ("not authenticated", skip silently)
	ResolveAccount(userID string) (*maildomain.Account, error)

	// Device tokens for FCM pushes
	GetDeviceTokens(userID string) ([]string, error)
	RegisterDeviceToken(userID, token string) error
	DeleteDeviceToken(token string) error
}

// gormTeamRepository implements TeamRepository using GORM
type gormTeamRepository struct {
	db *gorm.DB
}

// NewGormTeamRepository creates a new GORM-based TeamRepository
func NewGormTeamRepository(db *gorm.DB) TeamRepository {
	return &gormTeamRepository{db: db}
}

func (r *gormTeamRepository) ListActiveTeams() ([]*teamdomain.Team, error) {
	var teams []*teamdomain.Team
	err := r.db.Where("active = ?", true).Order("created_at ASC").Find(&teams).Error
	return teams, err
}

func (r *gormTeamRepository) ListActiveMembers(teamID string) ([]*teamdomain.TeamMember, error) {
	var members []*teamdomain.TeamMember
	err := r.db.Where("team_id = ? AND active = ?", teamID, true).Order("created_at ASC").Find(&members).Error
	return members, err
}

func (r *gormTeamRepository) FindMemberByEmail(email string) (*teamdomain.TeamMember, error) {
	var member teamdomain.TeamMember
	err := r.db.Where("email = ? AND active = ?", email, true).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *gormTeamRepository) ResolveAccount(userID string) (*maildomain.Account, error) {
	var account teamdomain.MailAccount
	err := r.db.Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &maildomain.Account{
		UserID:       account.UserID,
		Email:        account.Email,
		Provider:     account.Provider,
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		IMAPHost:     account.IMAPHost,
		IMAPUsername: account.IMAPUsername,
		IMAPPassword: account.IMAPPassword,
		OnTokenRefresh: func(token *oauth2.Token) error {
			return r.saveRefreshedToken(account.UserID, token)
		},
	}, nil
}

// saveRefreshedToken persists an OAuth token rotated by the provider so the
// next run does not start from a stale access token.
func (r *gormTeamRepository) saveRefreshedToken(userID string, token *oauth2.Token) error {
	updates := map[string]interface{}{
		"access_token": token.AccessToken,
		"updated_at":   time.Now(),
	}
	if token.RefreshToken != "" {
		updates["refresh_token"] = token.RefreshToken
	}
	err := r.db.Model(&teamdomain.MailAccount{}).Where("user_id = ?", userID).Updates(updates).Error
	if err != nil {
		log.Printf("[TeamRepo] Failed to persist refreshed token for user %s: %v", userID, err)
	}
	return err
}

func (r *gormTeamRepository) GetDeviceTokens(userID string) ([]string, error) {
	var rows []*teamdomain.DeviceToken
	if err := r.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, row.Token)
	}
	return tokens, nil
}

func (r *gormTeamRepository) RegisterDeviceToken(userID, token string) error {
	row := &teamdomain.DeviceToken{
		Token:     token,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	err := r.db.Create(row).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil // already registered
	}
	return err
}

func (r *gormTeamRepository) DeleteDeviceToken(token string) error {
	return r.db.Where("token = ?", token).Delete(&teamdomain.DeviceToken{}).Error
}

// EnsureDefaultTeam seeds a single-team install so discovery has something to
// iterate on first boot.
func EnsureDefaultTeam(db *gorm.DB, name string) (*teamdomain.Team, error) {
	var team teamdomain.Team
	err := db.Where("active = ?", true).First(&team).Error
	if err == nil {
		return &team, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	team = teamdomain.Team{
		ID:        uuid.New().String(),
		Name:      name,
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(&team).Error; err != nil {
		return nil, err
	}
	return &team, nil
}
