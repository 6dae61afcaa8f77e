package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/pkg/db/pagination"
)

var (
	ErrNotFound         = errors.New("consent_not_found")
	ErrInvalidScope     = errors.New("invalid_scope")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)

// RecordRequest captures one consent decision.
type RecordRequest struct {
	UserID        snowflake.ID
	IntegrationID snowflake.ID
	ScopeName     string
	Status        Status
	Reason        string
	IPAddress     string
	UserAgent     string
	Metadata      map[string]any
}

// ListRequest narrows and pages consent queries; zero values mean "any".
type ListRequest struct {
	pagination.Pagination
	IntegrationID snowflake.ID
	Status        Status
}

// ListCursor pins a page boundary in the (created_at, id) descending order.
type ListCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ListFilter is the repository-level query shape.
type ListFilter struct {
	IntegrationID snowflake.ID
	Status        Status
	Cursor        *ListCursor
	Limit         int
}

// Page is one page of consents plus the token for the next one.
type Page struct {
	pagination.PageInfo
	Consents []*Consent `json:"consents"`
}

// Summary aggregates a user's consent decisions.
type Summary struct {
	Total          int64                        `json:"total"`
	Granted        int64                        `json:"granted"`
	Denied         int64                        `json:"denied"`
	Revoked        int64                        `json:"revoked"`
	PerIntegration map[string]IntegrationCounts `json:"per_integration"`
}

type IntegrationCounts struct {
	Granted int64 `json:"granted"`
	Denied  int64 `json:"denied"`
	Revoked int64 `json:"revoked"`
}

// Ledger records per-scope consent decisions independent of token lifecycle.
type Ledger interface {
	Record(ctx context.Context, req RecordRequest) (*Consent, error)

	ListForUser(ctx context.Context, userID snowflake.ID, req ListRequest) (*Page, error)

	// Revoke flips the row to revoked and stamps revoked_at; never deletes.
	// Scoped to the owning user so a caller cannot revoke someone else's row.
	Revoke(ctx context.Context, userID, consentID snowflake.ID, reason string) error

	// RevokeAllForUser bulk-revokes granted consents, optionally scoped to
	// one integration. Returns the number of rows revoked.
	RevokeAllForUser(ctx context.Context, userID snowflake.ID, integrationID snowflake.ID, reason string) (int64, error)

	// CheckScopeConsent reports whether the user has an active grant for
	// the scope on the integration.
	CheckScopeConsent(ctx context.Context, userID, integrationID snowflake.ID, scopeName string) (bool, error)

	Summarize(ctx context.Context, userID snowflake.ID) (*Summary, error)
}

// Error wraps an underlying consent persistence failure with context.
type Error struct {
	Op        string
	ConsentID snowflake.ID
	Err       error
}

func (e *Error) Error() string {
	if e.ConsentID != 0 {
		return fmt.Sprintf("consent %s: %s failed: %v", e.ConsentID, e.Op, e.Err)
	}
	return fmt.Sprintf("consent: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
