package provider

import (
	"context"
	"net/url"

	"github.com/porterhq/porter/internal/config"
	"go.uber.org/zap"
)

const (
	microsoftAuthURL     = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	microsoftTokenURL    = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	microsoftUserInfoURL = "https://graph.microsoft.com/v1.0/me"
)

var microsoftScopeCatalog = []ScopeInfo{
	{Name: "openid", DisplayName: "OpenID", Description: "Sign you in", Category: "identity", ReadOnly: true, Required: true},
	{Name: "profile", DisplayName: "Profile", Description: "View your basic profile", Category: "identity", ReadOnly: true},
	{Name: "email", DisplayName: "Email address", Description: "View your email address", Category: "identity", ReadOnly: true},
	{Name: "offline_access", DisplayName: "Offline access", Description: "Maintain access to data you have given it access to", Category: "identity", Required: true},
	{Name: "User.Read", DisplayName: "User profile", Description: "Sign in and read your profile", Category: "identity", ReadOnly: true},
	{Name: "Calendars.Read", DisplayName: "Calendars (read-only)", Description: "Read your calendars", Category: "calendar", ReadOnly: true},
	{Name: "Calendars.ReadWrite", DisplayName: "Calendars", Description: "Have full access to your calendars", Category: "calendar"},
	{Name: "Mail.Read", DisplayName: "Mail (read-only)", Description: "Read your mail", Category: "email", ReadOnly: true},
	{Name: "Mail.Send", DisplayName: "Mail send", Description: "Send mail as you", Category: "email"},
	{Name: "Mail.ReadWrite", DisplayName: "Mail", Description: "Read and write access to your mail", Category: "email"},
	{Name: "Tasks.Read", DisplayName: "Tasks (read-only)", Description: "Read your tasks and task lists", Category: "todos", ReadOnly: true},
	{Name: "Tasks.ReadWrite", DisplayName: "Tasks", Description: "Create, read, update, and delete your tasks", Category: "todos"},
}

type microsoftAdapter struct {
	http httpClient
	log  *zap.Logger

	clientID     string
	clientSecret string
	redirectURI  string

	authURL     string
	tokenURL    string
	userInfoURL string
}

func NewMicrosoft(creds config.ProviderCredentials, log *zap.Logger) Adapter {
	return &microsoftAdapter{
		http:         newHTTPClient(),
		log:          log.Named("provider.microsoft"),
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
		redirectURI:  creds.RedirectURI,
		authURL:      microsoftAuthURL,
		tokenURL:     microsoftTokenURL,
		userInfoURL:  microsoftUserInfoURL,
	}
}

func (m *microsoftAdapter) Name() string { return Microsoft }

func (m *microsoftAdapter) AuthorizationURL(state string, scopes []string, extra map[string]string) (string, error) {
	params := map[string]string{
		"response_mode": "query",
	}
	for key, value := range extra {
		params[key] = value
	}
	return buildAuthURL(m.authURL, m.clientID, m.redirectURI, state, scopes, params)
}

func (m *microsoftAdapter) ExchangeCode(ctx context.Context, code string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", m.redirectURI)
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)

	wire, err := m.http.postForm(ctx, Microsoft, "exchange_code", m.tokenURL, form, nil)
	if err != nil {
		return nil, err
	}

	grant := normalizeWire(wire)
	m.enrich(ctx, grant)
	return grant, nil
}

func (m *microsoftAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)

	wire, err := m.http.postForm(ctx, Microsoft, "refresh_token", m.tokenURL, form, nil)
	if err != nil {
		return nil, err
	}

	grant := normalizeWire(wire)
	if grant.RefreshToken == nil {
		grant.RefreshToken = &refreshToken
	}
	return grant, nil
}

func (m *microsoftAdapter) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	return m.http.getJSON(ctx, Microsoft, "user_info", m.userInfoURL, accessToken, nil)
}

func (m *microsoftAdapter) ValidateToken(ctx context.Context, accessToken string) bool {
	info, err := m.UserInfo(ctx, accessToken)
	if err != nil {
		return false
	}
	return claimString(info, "id") != ""
}

func (m *microsoftAdapter) AvailableScopes() []ScopeInfo { return microsoftScopeCatalog }

func (m *microsoftAdapter) ValidateScopes(requested []string) (bool, []string) {
	return validateAgainstCatalog(requested, microsoftScopeCatalog)
}

// RevokeToken: Microsoft's identity platform has no self-service token
// revocation endpoint, so revocation is local-only.
func (m *microsoftAdapter) RevokeToken(ctx context.Context, token, tokenType string) bool {
	_, _, _ = ctx, token, tokenType
	return true
}

func (m *microsoftAdapter) enrich(ctx context.Context, grant *TokenGrant) {
	info, err := m.UserInfo(ctx, grant.AccessToken)
	if err != nil {
		m.log.Warn("user info enrichment failed", zap.Error(err))
		return
	}
	grant.ProviderUserID = claimString(info, "id")
	grant.ProviderEmail = claimString(info, "mail", "userPrincipalName")
	grant.ProviderName = claimString(info, "displayName")
}

func normalizeWire(wire *wireToken) *TokenGrant {
	return &TokenGrant{
		AccessToken:  wire.AccessToken,
		RefreshToken: wire.RefreshToken,
		ExpiresIn:    wire.ExpiresIn,
		Scope:        wire.Scope,
		TokenType:    wire.TokenType,
	}
}
