package provider

import (
	"context"
)

// Provider names form a closed set.
const (
	Google    = "google"
	Microsoft = "microsoft"
	Notion    = "notion"
	YouTube   = "youtube"
)

// Names lists every supported provider.
func Names() []string {
	return []string{Google, Microsoft, Notion, YouTube}
}

// Known reports whether name is a supported provider.
func Known(name string) bool {
	switch name {
	case Google, Microsoft, Notion, YouTube:
		return true
	default:
		return false
	}
}

// TokenGrant is the normalized result of a token-endpoint exchange. Optional
// response fields stay optional here instead of being probed out of a map
// downstream.
type TokenGrant struct {
	AccessToken  string
	RefreshToken *string
	ExpiresIn    *int64
	Scope        string
	TokenType    string

	// Best-effort identity enrichment from the provider's userinfo endpoint.
	ProviderUserID string
	ProviderEmail  string
	ProviderName   string
}

// ScopeInfo describes one entry of a provider's static scope catalog.
type ScopeInfo struct {
	Name        string `json:"scope_name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ReadOnly    bool   `json:"is_readonly"`
	Required    bool   `json:"is_required"`
}

// Adapter translates the generic OAuth verb set into provider-specific calls.
type Adapter interface {
	Name() string

	// AuthorizationURL builds the provider consent-screen URL carrying the
	// CSRF state and the space-joined scope list.
	AuthorizationURL(state string, scopes []string, extra map[string]string) (string, error)

	// ExchangeCode swaps an authorization code for tokens. Failure to fetch
	// user info afterwards does not fail the exchange.
	ExchangeCode(ctx context.Context, code string) (*TokenGrant, error)

	// RefreshAccessToken exchanges a refresh token for a new access token.
	// The original refresh token is preserved unless the provider rotates it.
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenGrant, error)

	// UserInfo performs the provider identity lookup.
	UserInfo(ctx context.Context, accessToken string) (map[string]any, error)

	// ValidateToken reports whether the access token still resolves an identity.
	ValidateToken(ctx context.Context, accessToken string) bool

	AvailableScopes() []ScopeInfo

	// ValidateScopes checks requested scopes against the catalog and returns
	// the ones it does not recognize.
	ValidateScopes(requested []string) (bool, []string)

	// RevokeToken is best-effort; providers without a revoke endpoint
	// report success unconditionally.
	RevokeToken(ctx context.Context, token, tokenType string) bool
}

func catalogNames(catalog []ScopeInfo) map[string]struct{} {
	names := make(map[string]struct{}, len(catalog))
	for _, info := range catalog {
		names[info.Name] = struct{}{}
	}
	return names
}

func validateAgainstCatalog(requested []string, catalog []ScopeInfo) (bool, []string) {
	names := catalogNames(catalog)
	var invalid []string
	for _, scope := range requested {
		if _, ok := names[scope]; !ok {
			invalid = append(invalid, scope)
		}
	}
	return len(invalid) == 0, invalid
}
