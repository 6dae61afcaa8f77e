package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Type discriminates stored token rows.
type Type string

const (
	TypeAccess  Type = "access_token"
	TypeRefresh Type = "refresh_token"
)

// Token is one encrypted credential row owned by an integration. Rows are
// superseded rather than overwritten on refresh; revocation deletes them
// en masse.
type Token struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	IntegrationID snowflake.ID `gorm:"not null;index" json:"integration_id"`
	Type          Type         `gorm:"column:token_type;type:text;not null;index" json:"token_type"`
	Ciphertext    string       `gorm:"column:encrypted_value;type:text;not null" json:"-"`
	ExpiresAt     *time.Time   `gorm:"index" json:"expires_at,omitempty"`
	Scope         string       `gorm:"type:text" json:"scope,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Token) TableName() string { return "oauth_tokens" }

// Valid reports whether the token is usable at the given instant. A non-null
// expiry in the past is never valid.
func (t *Token) Valid(now time.Time) bool {
	if t == nil {
		return false
	}
	return t.ExpiresAt == nil || t.ExpiresAt.After(now)
}
