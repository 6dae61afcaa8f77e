package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, consent *Consent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Consent, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter ListFilter) ([]*Consent, error)
	MarkRevoked(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, reason string, now time.Time) error
	BulkRevoke(ctx context.Context, db *gorm.DB, userID, integrationID snowflake.ID, reason string, now time.Time) (int64, error)
	CountGranted(ctx context.Context, db *gorm.DB, userID, integrationID snowflake.ID, scopeName string) (int64, error)
}
