package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/token/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, token *domain.Token) error {
	return db.WithContext(ctx).Create(token).Error
}

func (r *repo) FindValid(ctx context.Context, db *gorm.DB, integrationID snowflake.ID, tokenType domain.Type, now time.Time) (*domain.Token, error) {
	var token domain.Token
	err := db.WithContext(ctx).
		Where("integration_id = ? AND token_type = ?", integrationID, tokenType).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at desc, id desc").
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, integrationID snowflake.ID, tokenType domain.Type, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Token{}).
		Where("integration_id = ? AND token_type = ?", integrationID, tokenType).
		Updates(map[string]any{"expires_at": now, "updated_at": now}).Error
}

func (r *repo) DeleteByIntegration(ctx context.Context, db *gorm.DB, integrationID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Delete(&domain.Token{}).Error
}

func (r *repo) DeleteExpired(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	tx := db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&domain.Token{})
	return tx.RowsAffected, tx.Error
}
