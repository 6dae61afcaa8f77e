package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestNotion(tokenURL, userInfoURL string) *notionAdapter {
	return &notionAdapter{
		http:         newHTTPClient(),
		log:          zap.NewNop(),
		clientID:     "notion-client",
		clientSecret: "notion-secret",
		redirectURI:  "https://app.example.com/callback",
		authURL:      notionAuthURL,
		tokenURL:     tokenURL,
		userInfoURL:  userInfoURL,
	}
}

func TestNotionAuthorizationURLIgnoresScopes(t *testing.T) {
	adapter := newTestNotion("", "")

	rawURL, err := adapter.AuthorizationURL("state-abc", []string{"read_content"}, nil)
	require.NoError(t, err)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Empty(t, query.Get("scope"))
	assert.Equal(t, "user", query.Get("owner"))
	assert.Equal(t, "state-abc", query.Get("state"))
}

func TestNotionExchangeCodeUsesJSONAndBasicAuth(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "notion-client", user)
		assert.Equal(t, "notion-secret", pass)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "authorization_code", payload["grant_type"])
		assert.Equal(t, "the-code", payload["code"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":   "secret_notion_token",
			"workspace_id":   "ws-1",
			"workspace_name": "Acme",
			"owner": map[string]any{
				"user": map[string]any{
					"id":   "notion-user-1",
					"name": "Bob",
					"person": map[string]any{
						"email": "bob@example.com",
					},
				},
			},
		})
	}))
	defer tokenSrv.Close()

	adapter := newTestNotion(tokenSrv.URL, "")
	grant, err := adapter.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "secret_notion_token", grant.AccessToken)
	// Notion workspace tokens neither expire nor refresh.
	assert.Nil(t, grant.ExpiresIn)
	assert.Nil(t, grant.RefreshToken)
	assert.Equal(t, "notion-user-1", grant.ProviderUserID)
	assert.Equal(t, "bob@example.com", grant.ProviderEmail)
	assert.Equal(t, "Bob", grant.ProviderName)
}

func TestNotionRefreshIsNotSupported(t *testing.T) {
	adapter := newTestNotion("", "")

	_, err := adapter.RefreshAccessToken(context.Background(), "whatever")
	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, Notion, provErr.Provider)
	assert.Equal(t, "refresh_token", provErr.Op)
}

func TestNotionUserInfoSendsVersionHeader(t *testing.T) {
	infoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, notionVersion, r.Header.Get("Notion-Version"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "bot-1", "type": "bot"})
	}))
	defer infoSrv.Close()

	adapter := newTestNotion("", infoSrv.URL)
	info, err := adapter.UserInfo(context.Background(), "secret_notion_token")
	require.NoError(t, err)
	assert.Equal(t, "bot-1", info["id"])
}
