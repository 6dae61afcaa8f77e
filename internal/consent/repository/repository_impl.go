package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/consent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, consent *domain.Consent) error {
	return db.WithContext(ctx).Create(consent).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Consent, error) {
	var consent domain.Consent
	err := db.WithContext(ctx).Where("id = ?", id).First(&consent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &consent, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter domain.ListFilter) ([]*domain.Consent, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Consent{}).
		Where("user_id = ?", userID)
	if filter.IntegrationID != 0 {
		stmt = stmt.Where("integration_id = ?", filter.IntegrationID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("consent_status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		// One extra row tells the caller whether another page exists.
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var consents []*domain.Consent
	if err := stmt.Find(&consents).Error; err != nil {
		return nil, err
	}
	return consents, nil
}

func (r *repo) MarkRevoked(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, reason string, now time.Time) error {
	tx := db.WithContext(ctx).
		Model(&domain.Consent{}).
		Where("id = ? AND user_id = ? AND consent_status <> ?", id, userID, domain.StatusRevoked).
		Updates(map[string]any{
			"consent_status": domain.StatusRevoked,
			"revoked_at": now,
			"reason":     reason,
			"updated_at": now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) BulkRevoke(ctx context.Context, db *gorm.DB, userID, integrationID snowflake.ID, reason string, now time.Time) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Consent{}).
		Where("user_id = ? AND consent_status = ?", userID, domain.StatusGranted)
	if integrationID != 0 {
		stmt = stmt.Where("integration_id = ?", integrationID)
	}
	tx := stmt.Updates(map[string]any{
		"consent_status": domain.StatusRevoked,
		"revoked_at": now,
		"reason":     reason,
		"updated_at": now,
	})
	return tx.RowsAffected, tx.Error
}

func (r *repo) CountGranted(ctx context.Context, db *gorm.DB, userID, integrationID snowflake.ID, scopeName string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Consent{}).
		Where("user_id = ? AND integration_id = ? AND scope_name = ? AND consent_status = ?",
			userID, integrationID, scopeName, domain.StatusGranted).
		Count(&count).Error
	return count, err
}
