package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/porterhq/porter/pkg/db/pagination"
)

// ErrInvalidPageToken rejects a page token that cannot be decoded.
var ErrInvalidPageToken = errors.New("invalid_page_token")

// StateReason is the internal cause of a state rejection. It is logged but
// never surfaced to callers, who only ever see "invalid_state".
type StateReason string

const (
	StateNotFound    StateReason = "not_found"
	StateAlreadyUsed StateReason = "already_used"
	StateExpired     StateReason = "expired"
)

// StateError rejects a CSRF state token. The error message is deliberately
// generic; the reason stays in internal logs.
type StateError struct {
	Reason StateReason
}

func (e *StateError) Error() string { return "invalid_state" }

// SecurityError wraps a failed security-layer persistence operation.
type SecurityError struct {
	Check string
	Err   error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security %s failed: %v", e.Check, e.Err)
}

func (e *SecurityError) Unwrap() error { return e.Err }

// CreateStateRequest captures everything that must survive until the callback.
type CreateStateRequest struct {
	Provider    string
	UserID      *snowflake.ID
	RedirectURI string
	Scopes      []string
	Metadata    map[string]any
}

// SecurityEvent is one audit log entry to append.
type SecurityEvent struct {
	UserID        *snowflake.ID
	Action        string
	Status        string
	Provider      string
	IntegrationID *snowflake.ID
	IPAddress     string
	UserAgent     string
	Details       map[string]any
	Err           error
}

// ListAuditLogsRequest carries caller-facing audit log query parameters.
type ListAuditLogsRequest struct {
	pagination.Pagination

	UserID   snowflake.ID
	Provider string
	Action   string
}

// AuditCursor is a decoded page position.
type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// AuditFilter narrows audit log queries at the repository level.
type AuditFilter struct {
	UserID   snowflake.ID
	Provider string
	Action   string
	Cursor   *AuditCursor
	Limit    int
}

// AuditLogPage is one page of audit entries, newest first.
type AuditLogPage struct {
	pagination.PageInfo

	Logs []*AuditLog `json:"audit_logs"`
}

// Guard issues and validates CSRF state tokens and appends tamper-evident
// audit entries for every security-relevant action.
type Guard interface {
	// CreateState mints a single-use, time-boxed state for an initiated flow.
	CreateState(ctx context.Context, req CreateStateRequest) (*OAuthState, error)

	// GetByToken looks a state up without validating it.
	GetByToken(ctx context.Context, stateToken string) (*OAuthState, error)

	// ValidateState rejects unknown, used, or expired states. Consumption is
	// decoupled: with markUsed=false a failed downstream step can retry the
	// same state before it expires.
	ValidateState(ctx context.Context, stateToken, provider string, markUsed bool) (*OAuthState, error)

	// MarkStateUsed applies is_used=true unconditionally.
	MarkStateUsed(ctx context.Context, stateID snowflake.ID) error

	CleanupExpiredStates(ctx context.Context, now time.Time) (int64, error)

	// LogSecurityEvent appends an audit entry. Best-effort for callers: a
	// failed write is returned but safe to ignore.
	LogSecurityEvent(ctx context.Context, event SecurityEvent) (*AuditLog, error)

	ListAuditLogs(ctx context.Context, req ListAuditLogsRequest) (*AuditLogPage, error)

	CleanupOldAuditLogs(ctx context.Context, retentionDays int) (int64, error)
}
