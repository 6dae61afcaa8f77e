package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListQuery narrows integration queries; zero values mean "any".
type ListQuery struct {
	UserID   snowflake.ID
	Provider string
	Statuses []Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, integration *Integration) error

	// FindByID returns nil when no row exists.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Integration, error)

	// FindNonRevoked returns the single non-revoked row for the (user,
	// provider) pair, or nil. More than one would violate the upsert
	// invariant; the newest wins if the data is ever in that shape.
	FindNonRevoked(ctx context.Context, db *gorm.DB, userID snowflake.ID, provider string) (*Integration, error)

	Update(ctx context.Context, db *gorm.DB, integration *Integration) error

	List(ctx context.Context, db *gorm.DB, query ListQuery) ([]*Integration, error)
}
