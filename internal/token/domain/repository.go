package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, token *Token) error

	// FindValid returns the newest token of the given type whose expiry is
	// null or in the future, or nil when none exists.
	FindValid(ctx context.Context, db *gorm.DB, integrationID snowflake.ID, tokenType Type, now time.Time) (*Token, error)

	// Touch soft-invalidates by expiring matching rows in place, without
	// deleting them.
	Touch(ctx context.Context, db *gorm.DB, integrationID snowflake.ID, tokenType Type, now time.Time) error

	DeleteByIntegration(ctx context.Context, db *gorm.DB, integrationID snowflake.ID) error

	DeleteExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
