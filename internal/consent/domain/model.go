package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the recorded consent decision for one scope.
type Status string

const (
	StatusGranted Status = "granted"
	StatusDenied  Status = "denied"
	StatusRevoked Status = "revoked"
)

// Consent is one per-scope decision event. Revocation flips the status and
// stamps revoked_at; rows are never deleted so the audit trail survives.
//
// UserID is denormalized from the integration so consent queries never need
// a join to filter by user.
type Consent struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	IntegrationID snowflake.ID      `gorm:"not null;index" json:"integration_id"`
	UserID        snowflake.ID      `gorm:"not null;index" json:"user_id"`
	ScopeName     string            `gorm:"type:text;not null" json:"scope_name"`
	Status        Status            `gorm:"column:consent_status;type:text;not null" json:"consent_status"`
	GrantedAt     *time.Time        `json:"granted_at,omitempty"`
	RevokedAt     *time.Time        `json:"revoked_at,omitempty"`
	Reason        string            `gorm:"type:text" json:"reason,omitempty"`
	IPAddress     string            `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent     string            `gorm:"type:text" json:"user_agent,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Consent) TableName() string { return "consents" }
