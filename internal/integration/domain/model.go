package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the integration lifecycle state. Revoked is terminal: a revoked
// integration is never reactivated, reconnecting creates a new row.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// Integration is one user's connection to one provider. At most one
// non-revoked row may exist per (user_id, provider); re-authorization upserts
// instead of duplicating.
type Integration struct {
	ID             snowflake.ID                `gorm:"primaryKey" json:"id"`
	UserID         snowflake.ID                `gorm:"not null;index:idx_integrations_user_provider" json:"user_id"`
	Provider       string                      `gorm:"type:text;not null;index:idx_integrations_user_provider" json:"provider"`
	ProviderUserID *string                     `gorm:"column:provider_user_id;type:text" json:"provider_user_id,omitempty"`
	Scopes         datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"scopes"`
	Status         Status                      `gorm:"type:text;not null;default:pending;index" json:"status"`
	Metadata       datatypes.JSONMap           `gorm:"column:provider_metadata;type:jsonb" json:"provider_metadata,omitempty"`
	LastSyncAt     *time.Time                  `json:"last_sync_at,omitempty"`
	CreatedAt      time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Integration) TableName() string { return "integrations" }

// Revocable reports whether the integration can still transition to revoked.
func (i *Integration) Revocable() bool {
	return i.Status != StatusRevoked
}
