package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/integration/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, integration *domain.Integration) error {
	return db.WithContext(ctx).Create(integration).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Integration, error) {
	var integration domain.Integration
	err := db.WithContext(ctx).Where("id = ?", id).First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *repo) FindNonRevoked(ctx context.Context, db *gorm.DB, userID snowflake.ID, provider string) (*domain.Integration, error) {
	var integration domain.Integration
	err := db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND status <> ?", userID, provider, domain.StatusRevoked).
		Order("created_at desc, id desc").
		First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, integration *domain.Integration) error {
	return db.WithContext(ctx).Save(integration).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, query domain.ListQuery) ([]*domain.Integration, error) {
	tx := db.WithContext(ctx).Model(&domain.Integration{})
	if query.UserID != 0 {
		tx = tx.Where("user_id = ?", query.UserID)
	}
	if query.Provider != "" {
		tx = tx.Where("provider = ?", query.Provider)
	}
	if len(query.Statuses) > 0 {
		tx = tx.Where("status IN ?", query.Statuses)
	}

	var integrations []*domain.Integration
	if err := tx.Order("created_at desc, id desc").Find(&integrations).Error; err != nil {
		return nil, err
	}
	return integrations, nil
}
