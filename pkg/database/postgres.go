package database

import (
	"followup-backend/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewPostgresConnection opens the application database. TranslateError is on
// so unique-index violations surface as gorm.ErrDuplicatedKey, which the
// follow-up upsert relies on for natural-key conflict resolution.
func NewPostgresConnection(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
	})
}
