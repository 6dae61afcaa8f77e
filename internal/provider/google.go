package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/porterhq/porter/internal/config"
	"go.uber.org/zap"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleRevokeURL   = "https://oauth2.googleapis.com/revoke"
)

var googleScopeCatalog = []ScopeInfo{
	{Name: "openid", DisplayName: "OpenID", Description: "Associate you with your personal info on Google", Category: "identity", ReadOnly: true, Required: true},
	{Name: "https://www.googleapis.com/auth/userinfo.email", DisplayName: "Email address", Description: "See your primary Google Account email address", Category: "identity", ReadOnly: true, Required: true},
	{Name: "https://www.googleapis.com/auth/userinfo.profile", DisplayName: "Profile", Description: "See your personal info", Category: "identity", ReadOnly: true},
	{Name: "https://www.googleapis.com/auth/calendar", DisplayName: "Calendar", Description: "See, edit, share, and permanently delete all your calendars", Category: "calendar"},
	{Name: "https://www.googleapis.com/auth/calendar.readonly", DisplayName: "Calendar (read-only)", Description: "See and download any calendar you can access", Category: "calendar", ReadOnly: true},
	{Name: "https://www.googleapis.com/auth/calendar.events", DisplayName: "Calendar events", Description: "View and edit events on all your calendars", Category: "calendar"},
	{Name: "https://www.googleapis.com/auth/gmail.readonly", DisplayName: "Gmail (read-only)", Description: "View your email messages and settings", Category: "email", ReadOnly: true},
	{Name: "https://www.googleapis.com/auth/gmail.send", DisplayName: "Gmail send", Description: "Send email on your behalf", Category: "email"},
	{Name: "https://www.googleapis.com/auth/gmail.modify", DisplayName: "Gmail modify", Description: "Read, compose, and send emails from your Gmail account", Category: "email"},
	{Name: "https://www.googleapis.com/auth/tasks", DisplayName: "Tasks", Description: "Create, edit, organize, and delete all your tasks", Category: "todos"},
	{Name: "https://www.googleapis.com/auth/tasks.readonly", DisplayName: "Tasks (read-only)", Description: "View your tasks", Category: "todos", ReadOnly: true},
	{Name: "https://www.googleapis.com/auth/drive.readonly", DisplayName: "Drive (read-only)", Description: "See and download all your Google Drive files", Category: "files", ReadOnly: true},
}

type googleAdapter struct {
	http httpClient
	log  *zap.Logger

	clientID     string
	clientSecret string
	redirectURI  string

	authURL     string
	tokenURL    string
	userInfoURL string
	revokeURL   string

	// fallbackAccessTTL applies when the token response omits expires_in.
	fallbackAccessTTL time.Duration
}

func NewGoogle(creds config.ProviderCredentials, fallbackAccessTTL time.Duration, log *zap.Logger) Adapter {
	return &googleAdapter{
		http:              newHTTPClient(),
		log:               log.Named("provider.google"),
		clientID:          creds.ClientID,
		clientSecret:      creds.ClientSecret,
		redirectURI:       creds.RedirectURI,
		authURL:           googleAuthURL,
		tokenURL:          googleTokenURL,
		userInfoURL:       googleUserInfoURL,
		revokeURL:         googleRevokeURL,
		fallbackAccessTTL: fallbackAccessTTL,
	}
}

func (g *googleAdapter) Name() string { return Google }

func (g *googleAdapter) AuthorizationURL(state string, scopes []string, extra map[string]string) (string, error) {
	// Offline access with forced consent is the only way Google re-issues a
	// refresh token on repeat connects.
	params := map[string]string{
		"access_type": "offline",
		"prompt":      "consent",
	}
	for key, value := range extra {
		params[key] = value
	}
	return buildAuthURL(g.authURL, g.clientID, g.redirectURI, state, scopes, params)
}

func (g *googleAdapter) ExchangeCode(ctx context.Context, code string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", g.redirectURI)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)

	wire, err := g.http.postForm(ctx, Google, "exchange_code", g.tokenURL, form, nil)
	if err != nil {
		return nil, err
	}

	grant := g.normalize(wire)
	g.enrich(ctx, grant)
	return grant, nil
}

func (g *googleAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)

	wire, err := g.http.postForm(ctx, Google, "refresh_token", g.tokenURL, form, nil)
	if err != nil {
		return nil, err
	}

	grant := g.normalize(wire)
	if grant.RefreshToken == nil {
		grant.RefreshToken = &refreshToken
	}
	return grant, nil
}

func (g *googleAdapter) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	return g.http.getJSON(ctx, Google, "user_info", g.userInfoURL, accessToken, nil)
}

func (g *googleAdapter) ValidateToken(ctx context.Context, accessToken string) bool {
	info, err := g.UserInfo(ctx, accessToken)
	if err != nil {
		return false
	}
	return claimString(info, "id", "sub") != ""
}

func (g *googleAdapter) AvailableScopes() []ScopeInfo { return googleScopeCatalog }

func (g *googleAdapter) ValidateScopes(requested []string) (bool, []string) {
	return validateAgainstCatalog(requested, googleScopeCatalog)
}

func (g *googleAdapter) RevokeToken(ctx context.Context, token, tokenType string) bool {
	_ = tokenType // Google's revoke endpoint accepts either token kind.
	form := url.Values{}
	form.Set("token", token)
	return g.http.postRevoke(ctx, g.revokeURL, form)
}

func (g *googleAdapter) normalize(wire *wireToken) *TokenGrant {
	grant := &TokenGrant{
		AccessToken:  wire.AccessToken,
		RefreshToken: wire.RefreshToken,
		ExpiresIn:    wire.ExpiresIn,
		Scope:        wire.Scope,
		TokenType:    wire.TokenType,
	}
	if grant.ExpiresIn == nil && g.fallbackAccessTTL > 0 {
		fallback := int64(g.fallbackAccessTTL / time.Second)
		grant.ExpiresIn = &fallback
	}
	return grant
}

// enrich attaches the external identity when the userinfo call succeeds;
// a failure here never fails the exchange.
func (g *googleAdapter) enrich(ctx context.Context, grant *TokenGrant) {
	info, err := g.UserInfo(ctx, grant.AccessToken)
	if err != nil {
		g.log.Warn("user info enrichment failed", zap.Error(err))
		return
	}
	grant.ProviderUserID = claimString(info, "id", "sub")
	grant.ProviderEmail = claimString(info, "email")
	grant.ProviderName = claimString(info, "name")
}
