package provider

import (
	"context"
	"time"

	"github.com/porterhq/porter/internal/config"
	"go.uber.org/zap"
)

var youtubeScopeCatalog = []ScopeInfo{
	{Name: "openid", DisplayName: "OpenID", Description: "Associate you with your personal info on Google", Category: "identity", ReadOnly: true, Required: true},
	{Name: "https://www.googleapis.com/auth/userinfo.email", DisplayName: "Email address", Description: "See your primary Google Account email address", Category: "identity", ReadOnly: true, Required: true},
	{Name: "https://www.googleapis.com/auth/youtube.readonly", DisplayName: "YouTube (read-only)", Description: "View your YouTube account", Category: "video", ReadOnly: true},
	{Name: "https://www.googleapis.com/auth/youtube", DisplayName: "YouTube", Description: "Manage your YouTube account", Category: "video"},
	{Name: "https://www.googleapis.com/auth/youtube.upload", DisplayName: "YouTube upload", Description: "Manage your YouTube videos", Category: "video"},
	{Name: "https://www.googleapis.com/auth/youtube.force-ssl", DisplayName: "YouTube full access", Description: "See, edit, and permanently delete your YouTube videos, ratings, comments and captions", Category: "video"},
}

// youtubeAdapter rides Google's OAuth endpoints with a YouTube-restricted
// scope catalog. It is a specialization, not a separate flow.
type youtubeAdapter struct {
	google Adapter
}

func NewYouTube(creds config.ProviderCredentials, fallbackAccessTTL time.Duration, log *zap.Logger) Adapter {
	return &youtubeAdapter{
		google: NewGoogle(creds, fallbackAccessTTL, log.Named("provider.youtube")),
	}
}

func (y *youtubeAdapter) Name() string { return YouTube }

func (y *youtubeAdapter) AuthorizationURL(state string, scopes []string, extra map[string]string) (string, error) {
	return y.google.AuthorizationURL(state, scopes, extra)
}

func (y *youtubeAdapter) ExchangeCode(ctx context.Context, code string) (*TokenGrant, error) {
	return y.google.ExchangeCode(ctx, code)
}

func (y *youtubeAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	return y.google.RefreshAccessToken(ctx, refreshToken)
}

func (y *youtubeAdapter) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	return y.google.UserInfo(ctx, accessToken)
}

func (y *youtubeAdapter) ValidateToken(ctx context.Context, accessToken string) bool {
	return y.google.ValidateToken(ctx, accessToken)
}

func (y *youtubeAdapter) AvailableScopes() []ScopeInfo { return youtubeScopeCatalog }

func (y *youtubeAdapter) ValidateScopes(requested []string) (bool, []string) {
	return validateAgainstCatalog(requested, youtubeScopeCatalog)
}

func (y *youtubeAdapter) RevokeToken(ctx context.Context, token, tokenType string) bool {
	return y.google.RevokeToken(ctx, token, tokenType)
}
