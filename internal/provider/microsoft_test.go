package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMicrosoft(tokenURL, userInfoURL string) *microsoftAdapter {
	return &microsoftAdapter{
		http:         newHTTPClient(),
		log:          zap.NewNop(),
		clientID:     "ms-client",
		clientSecret: "ms-secret",
		redirectURI:  "https://app.example.com/callback",
		authURL:      microsoftAuthURL,
		tokenURL:     tokenURL,
		userInfoURL:  userInfoURL,
	}
}

func TestMicrosoftExchangeCodeEnrichesFromGraph(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "ms-access",
			"refresh_token": "ms-refresh",
			"expires_in":    3600,
			"scope":         "User.Read",
		})
	}))
	defer tokenSrv.Close()

	infoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                "ms-user-1",
			"displayName":       "Carol",
			"userPrincipalName": "carol@contoso.com",
		})
	}))
	defer infoSrv.Close()

	adapter := newTestMicrosoft(tokenSrv.URL, infoSrv.URL)
	grant, err := adapter.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "ms-access", grant.AccessToken)
	assert.Equal(t, "ms-user-1", grant.ProviderUserID)
	// Graph's mail field may be empty; userPrincipalName backfills it.
	assert.Equal(t, "carol@contoso.com", grant.ProviderEmail)
	assert.Equal(t, "Carol", grant.ProviderName)
}

func TestMicrosoftRevokeIsLocalOnly(t *testing.T) {
	adapter := newTestMicrosoft("", "")
	assert.True(t, adapter.RevokeToken(context.Background(), "anything", "access_token"))
}

func TestYouTubeRestrictsScopeCatalog(t *testing.T) {
	adapter := &youtubeAdapter{google: newTestGoogle("", "", "")}

	ok, _ := adapter.ValidateScopes([]string{"https://www.googleapis.com/auth/youtube.readonly"})
	assert.True(t, ok)

	// Valid for plain Google, but outside the YouTube specialization.
	ok, invalid := adapter.ValidateScopes([]string{"https://www.googleapis.com/auth/gmail.send"})
	assert.False(t, ok)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/gmail.send"}, invalid)
}

func TestScopeInfoJSONShape(t *testing.T) {
	raw, err := json.Marshal(ScopeInfo{
		Name:        "openid",
		DisplayName: "OpenID",
		Category:    "identity",
		ReadOnly:    true,
		Required:    true,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "openid", decoded["scope_name"])
	assert.Equal(t, true, decoded["is_readonly"])
	assert.Equal(t, true, decoded["is_required"])
}
