package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/provider"
)

// RefreshOutcome distinguishes "nothing to refresh" from an actual refresh,
// instead of overloading a nil return.
type RefreshOutcome int

const (
	// OutcomeRefreshed means a new access token was stored.
	OutcomeRefreshed RefreshOutcome = iota
	// OutcomeNoRefreshToken means the integration has no valid refresh
	// token; many grants omit one by design, so this is not an error.
	OutcomeNoRefreshToken
	// OutcomeInFlight means another refresh already holds the lock for
	// this integration.
	OutcomeInFlight
)

type RefreshResult struct {
	Outcome RefreshOutcome
	Token   *Token
}

// Store encrypts, persists, retrieves, and invalidates tokens per integration.
type Store interface {
	// Store persists the grant's access token (and refresh token when
	// present) as separate encrypted rows.
	Store(ctx context.Context, integrationID snowflake.ID, grant *provider.TokenGrant) ([]*Token, error)

	// GetValid returns a non-expired token of the given type, or nil. Never
	// mutates state.
	GetValid(ctx context.Context, integrationID snowflake.ID, tokenType Type) (*Token, error)

	// Decrypt recovers the plaintext value of a stored token.
	Decrypt(token *Token) (string, error)

	// Refresh exchanges a stored refresh token for a new access token via
	// the adapter, serialized per integration.
	Refresh(ctx context.Context, integrationID snowflake.ID, adapter provider.Adapter) (RefreshResult, error)

	// Invalidate soft-invalidates without deleting, preserving the audit
	// trail of prior tokens.
	Invalidate(ctx context.Context, integrationID snowflake.ID, tokenType Type) error

	// RevokeAll hard-deletes every token for the integration. Only used
	// during full integration revocation.
	RevokeAll(ctx context.Context, integrationID snowflake.ID) error

	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// Error wraps an encryption or storage failure. It carries the token type and
// operation but never the token value.
type Error struct {
	Op        string
	TokenType Type
	Err       error
}

func (e *Error) Error() string {
	if e.TokenType != "" {
		return fmt.Sprintf("token %s: %s failed: %v", e.TokenType, e.Op, e.Err)
	}
	return fmt.Sprintf("token: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
