package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertState(ctx context.Context, db *gorm.DB, state *OAuthState) error
	FindStateByToken(ctx context.Context, db *gorm.DB, stateToken string) (*OAuthState, error)
	MarkStateUsed(ctx context.Context, db *gorm.DB, stateID snowflake.ID) error
	DeleteExpiredStates(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)

	InsertAuditLog(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, db *gorm.DB, filter AuditFilter) ([]*AuditLog, error)
	DeleteAuditLogsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
