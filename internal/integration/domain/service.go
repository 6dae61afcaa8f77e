package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidRedirectURI = errors.New("invalid_redirect_uri")
	ErrUserUnresolved     = errors.New("state has no user")
)

// Error wraps an orchestration failure with the integration it concerns.
type Error struct {
	Op            string
	IntegrationID snowflake.ID
	Err           error
}

func (e *Error) Error() string {
	if e.IntegrationID != 0 {
		return fmt.Sprintf("integration %s: %s failed: %v", e.IntegrationID, e.Op, e.Err)
	}
	return fmt.Sprintf("integration: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ScopeError rejects a scope list up front, before any provider round-trip.
type ScopeError struct {
	Provider string
	Invalid  []string
	Missing  []string
}

func (e *ScopeError) Error() string {
	if len(e.Invalid) > 0 {
		return fmt.Sprintf("invalid scopes for %s: %s", e.Provider, strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("missing required scopes for %s: %s", e.Provider, strings.Join(e.Missing, ", "))
}

// FlowRequest starts an authorization flow for one user and provider.
type FlowRequest struct {
	UserID      snowflake.ID
	Provider    string
	Scopes      []string
	RedirectURI string
	Metadata    map[string]any
}

// FlowInitiation is what the caller redirects the user with.
type FlowInitiation struct {
	AuthorizationURL string   `json:"authorization_url"`
	StateToken       string   `json:"state_token"`
	Provider         string   `json:"provider"`
	Scopes           []string `json:"scopes"`
}

// CallbackResult summarizes a completed callback.
type CallbackResult struct {
	IntegrationID snowflake.ID `json:"integration_id"`
	Provider      string       `json:"provider"`
	Status        Status       `json:"status"`
	Scopes        []string     `json:"scopes"`
}

// SyncError is one integration's failure inside a batch sync.
type SyncError struct {
	IntegrationID snowflake.ID `json:"integration_id"`
	Provider      string       `json:"provider"`
	Message       string       `json:"message"`
}

// SyncReport aggregates a batch sync; per-integration failures are collected,
// never fatal to the batch.
type SyncReport struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Errors     []SyncError `json:"errors,omitempty"`
}

// CleanupReport counts rows removed by one maintenance pass.
type CleanupReport struct {
	ExpiredTokens int64 `json:"expired_tokens"`
	ExpiredStates int64 `json:"expired_states"`
	OldAuditLogs  int64 `json:"old_audit_logs"`
}

// Orchestrator owns integration status transitions and coordinates the
// provider adapters, token store, consent ledger, and security guard through
// the initiate → callback → active → refresh/sync → revoked flows.
type Orchestrator interface {
	// InitiateFlow validates scopes, mints a CSRF state, and builds the
	// provider authorization URL.
	InitiateFlow(ctx context.Context, req FlowRequest) (*FlowInitiation, error)

	// HandleCallback exchanges the authorization code, upserts and activates
	// the integration, stores tokens, and records consents. The state is
	// consumed only after every prior step succeeds, so a mid-flow failure
	// leaves it retryable within its expiry window.
	HandleCallback(ctx context.Context, stateToken, code, providerName string) (*CallbackResult, error)

	// RefreshTokens refreshes the integration's access token, serialized
	// per integration. False means nothing was refreshed, which covers a
	// missing integration, a missing refresh token, and a refresh already
	// in flight; none of those are errors.
	RefreshTokens(ctx context.Context, integrationID snowflake.ID) (bool, error)

	// Revoke flips status to revoked first, then deletes tokens and
	// soft-revokes consents, so a concurrent reader sees revoked even while
	// cleanup is in flight.
	Revoke(ctx context.Context, integrationID snowflake.ID, reason string) (bool, error)

	// Deactivate transitions an active integration to inactive without
	// touching its tokens.
	Deactivate(ctx context.Context, integrationID snowflake.ID) error

	// ListForUser filters to status ∈ {pending, active} when activeOnly is
	// set; pending counts as active enough to show the user.
	ListForUser(ctx context.Context, userID snowflake.ID, providerName string, activeOnly bool) ([]*Integration, error)

	// SyncAll round-trips each active integration to its provider to
	// refresh cached provider metadata.
	SyncAll(ctx context.Context, userID *snowflake.ID) (*SyncReport, error)

	// CleanupExpiredData prunes expired tokens, expired states, and old
	// audit logs. Each sub-cleanup is independent and idempotent.
	CleanupExpiredData(ctx context.Context) (*CleanupReport, error)
}
