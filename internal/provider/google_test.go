package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGoogle(tokenURL, userInfoURL, revokeURL string) *googleAdapter {
	return &googleAdapter{
		http:              newHTTPClient(),
		log:               zap.NewNop(),
		clientID:          "client-id",
		clientSecret:      "client-secret",
		redirectURI:       "https://app.example.com/callback",
		authURL:           googleAuthURL,
		tokenURL:          tokenURL,
		userInfoURL:       userInfoURL,
		revokeURL:         revokeURL,
		fallbackAccessTTL: 7 * 24 * time.Hour,
	}
}

func TestGoogleAuthorizationURL(t *testing.T) {
	adapter := newTestGoogle("", "", "")

	rawURL, err := adapter.AuthorizationURL("state-123", []string{"openid", "https://www.googleapis.com/auth/calendar"}, nil)
	require.NoError(t, err)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "state-123", query.Get("state"))
	assert.Equal(t, "openid https://www.googleapis.com/auth/calendar", query.Get("scope"))
	// Offline + consent is what makes Google re-issue refresh tokens.
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Equal(t, "consent", query.Get("prompt"))
}

func TestGoogleExchangeCode(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_in":    3599,
			"scope":         "openid",
			"token_type":    "Bearer",
		})
	}))
	defer tokenSrv.Close()

	infoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "google-user-9",
			"email": "alice@example.com",
			"name":  "Alice",
		})
	}))
	defer infoSrv.Close()

	adapter := newTestGoogle(tokenSrv.URL, infoSrv.URL, "")
	grant, err := adapter.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "access-1", grant.AccessToken)
	require.NotNil(t, grant.RefreshToken)
	assert.Equal(t, "refresh-1", *grant.RefreshToken)
	require.NotNil(t, grant.ExpiresIn)
	assert.Equal(t, int64(3599), *grant.ExpiresIn)
	assert.Equal(t, "google-user-9", grant.ProviderUserID)
	assert.Equal(t, "alice@example.com", grant.ProviderEmail)
}

func TestGoogleExchangeCodeAppliesFallbackExpiry(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
		})
	}))
	defer tokenSrv.Close()
	infoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "u"})
	}))
	defer infoSrv.Close()

	adapter := newTestGoogle(tokenSrv.URL, infoSrv.URL, "")
	grant, err := adapter.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	require.NotNil(t, grant.ExpiresIn)
	assert.Equal(t, int64(7*24*3600), *grant.ExpiresIn)
}

func TestGoogleUserInfoFailureDoesNotFailExchange(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"expires_in":   3600,
		})
	}))
	defer tokenSrv.Close()
	infoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer infoSrv.Close()

	adapter := newTestGoogle(tokenSrv.URL, infoSrv.URL, "")
	grant, err := adapter.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "access-1", grant.AccessToken)
	assert.Empty(t, grant.ProviderUserID)
}

func TestGoogleExchangeCodeNon200(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer tokenSrv.Close()

	adapter := newTestGoogle(tokenSrv.URL, "", "")
	_, err := adapter.ExchangeCode(context.Background(), "expired-code")

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, Google, provErr.Provider)
	assert.Equal(t, "exchange_code", provErr.Op)
	assert.Equal(t, http.StatusBadRequest, provErr.StatusCode)
}

func TestGoogleRefreshPreservesRefreshToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-refresh", r.PostForm.Get("refresh_token"))

		// Google omits the refresh token from refresh responses.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"expires_in":   3600,
		})
	}))
	defer tokenSrv.Close()

	adapter := newTestGoogle(tokenSrv.URL, "", "")
	grant, err := adapter.RefreshAccessToken(context.Background(), "the-refresh")
	require.NoError(t, err)
	assert.Equal(t, "access-2", grant.AccessToken)
	require.NotNil(t, grant.RefreshToken)
	assert.Equal(t, "the-refresh", *grant.RefreshToken)
}

func TestGoogleValidateScopes(t *testing.T) {
	adapter := newTestGoogle("", "", "")

	ok, invalid := adapter.ValidateScopes([]string{"openid", "https://www.googleapis.com/auth/gmail.send"})
	assert.True(t, ok)
	assert.Empty(t, invalid)

	ok, invalid = adapter.ValidateScopes([]string{"openid", "not-a-scope"})
	assert.False(t, ok)
	assert.Equal(t, []string{"not-a-scope"}, invalid)
}

func TestGoogleRevokeToken(t *testing.T) {
	var revoked string
	revokeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		revoked = r.PostForm.Get("token")
	}))
	defer revokeSrv.Close()

	adapter := newTestGoogle("", "", revokeSrv.URL)
	assert.True(t, adapter.RevokeToken(context.Background(), "access-1", "access_token"))
	assert.Equal(t, "access-1", revoked)
}
