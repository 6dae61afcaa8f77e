package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/security/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertState(ctx context.Context, db *gorm.DB, state *domain.OAuthState) error {
	return db.WithContext(ctx).Create(state).Error
}

func (r *repo) FindStateByToken(ctx context.Context, db *gorm.DB, stateToken string) (*domain.OAuthState, error) {
	var state domain.OAuthState
	err := db.WithContext(ctx).Where("state_token = ?", stateToken).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *repo) MarkStateUsed(ctx context.Context, db *gorm.DB, stateID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.OAuthState{}).
		Where("id = ?", stateID).
		Update("is_used", true).Error
}

func (r *repo) DeleteExpiredStates(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	tx := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.OAuthState{})
	return tx.RowsAffected, tx.Error
}

func (r *repo) InsertAuditLog(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListAuditLogs(ctx context.Context, db *gorm.DB, filter domain.AuditFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{})
	if filter.UserID != 0 {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if filter.Provider != "" {
		stmt = stmt.Where("provider = ?", filter.Provider)
	}
	if filter.Action != "" {
		stmt = stmt.Where("action = ?", filter.Action)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		// One extra row tells the caller whether another page exists.
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var entries []*domain.AuditLog
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) DeleteAuditLogsBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	tx := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.AuditLog{})
	return tx.RowsAffected, tx.Error
}
