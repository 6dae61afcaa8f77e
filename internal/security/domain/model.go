package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OAuthState is the ephemeral CSRF token for one initiated flow. It moves
// created → used (terminal) or created → expired (terminal); an expired or
// used state is never revalidated.
type OAuthState struct {
	ID         snowflake.ID         `gorm:"primaryKey" json:"id"`
	StateToken string               `gorm:"column:state_token;type:text;not null;uniqueIndex" json:"-"`
	Provider   string               `gorm:"type:text;not null" json:"provider"`
	UserID     *snowflake.ID        `gorm:"index" json:"user_id,omitempty"`
	RedirectURI string              `gorm:"column:redirect_uri;type:text" json:"redirect_uri,omitempty"`
	Scopes     datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"scopes,omitempty"`
	Metadata   datatypes.JSONMap    `gorm:"type:jsonb" json:"metadata,omitempty"`
	IsUsed     bool                 `gorm:"column:is_used;not null;default:false" json:"is_used"`
	ExpiresAt  time.Time            `gorm:"not null;index" json:"expires_at"`
	CreatedAt  time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (OAuthState) TableName() string { return "oauth_states" }

// Security-relevant actions recorded in the audit log.
const (
	ActionConnect = "connect"
	ActionRefresh = "refresh"
	ActionRevoke  = "revoke"
	ActionSync    = "sync"
	ActionError   = "error"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

// AuditLog is an append-only record of one security-relevant action. Rows are
// never updated or deleted in normal operation, only bulk-pruned by age.
type AuditLog struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID        *snowflake.ID     `gorm:"index" json:"user_id,omitempty"`
	Provider      string            `gorm:"type:text" json:"provider,omitempty"`
	IntegrationID *snowflake.ID     `gorm:"index" json:"integration_id,omitempty"`
	Action        string            `gorm:"type:text;not null;index" json:"action"`
	Status        string            `gorm:"type:text;not null" json:"status"`
	IPAddress     string            `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent     string            `gorm:"type:text" json:"user_agent,omitempty"`
	Details       datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
