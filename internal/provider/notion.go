package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/porterhq/porter/internal/config"
	"go.uber.org/zap"
)

const (
	notionAuthURL     = "https://api.notion.com/v1/oauth/authorize"
	notionTokenURL    = "https://api.notion.com/v1/oauth/token"
	notionUserInfoURL = "https://api.notion.com/v1/users/me"
	notionVersion     = "2022-06-28"
)

// Notion has no OAuth scope parameter; capabilities are fixed on the
// integration registration. The catalog mirrors those capabilities so the
// consent ledger can still track them per user.
var notionScopeCatalog = []ScopeInfo{
	{Name: "read_content", DisplayName: "Read content", Description: "Read pages and databases shared with the integration", Category: "notes", ReadOnly: true, Required: true},
	{Name: "insert_content", DisplayName: "Insert content", Description: "Create new pages and blocks", Category: "notes"},
	{Name: "update_content", DisplayName: "Update content", Description: "Update existing pages and blocks", Category: "notes"},
	{Name: "read_user_info", DisplayName: "Read user info", Description: "Read workspace user names and email addresses", Category: "identity", ReadOnly: true},
}

type notionAdapter struct {
	http httpClient
	log  *zap.Logger

	clientID     string
	clientSecret string
	redirectURI  string

	authURL     string
	tokenURL    string
	userInfoURL string
}

func NewNotion(creds config.ProviderCredentials, log *zap.Logger) Adapter {
	return &notionAdapter{
		http:         newHTTPClient(),
		log:          log.Named("provider.notion"),
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
		redirectURI:  creds.RedirectURI,
		authURL:      notionAuthURL,
		tokenURL:     notionTokenURL,
		userInfoURL:  notionUserInfoURL,
	}
}

func (n *notionAdapter) Name() string { return Notion }

func (n *notionAdapter) AuthorizationURL(state string, scopes []string, extra map[string]string) (string, error) {
	_ = scopes // Notion ignores the scope parameter entirely.
	params := map[string]string{
		"owner": "user",
	}
	for key, value := range extra {
		params[key] = value
	}
	return buildAuthURL(n.authURL, n.clientID, n.redirectURI, state, nil, params)
}

// ExchangeCode posts a JSON body with HTTP Basic credentials, which is the
// one token-endpoint contract Notion supports.
func (n *notionAdapter) ExchangeCode(ctx context.Context, code string) (*TokenGrant, error) {
	payload := map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": n.redirectURI,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(Notion, "exchange_code", 0, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, newError(Notion, "exchange_code", 0, "build request", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(n.clientID + ":" + n.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := n.http.client.Do(req)
	if err != nil {
		return nil, newError(Notion, "exchange_code", 0, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(Notion, "exchange_code", resp.StatusCode, "read response", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newError(Notion, "exchange_code", resp.StatusCode, truncate(string(raw), 256), nil)
	}

	var wire struct {
		AccessToken   string `json:"access_token"`
		BotID         string `json:"bot_id"`
		WorkspaceID   string `json:"workspace_id"`
		WorkspaceName string `json:"workspace_name"`
		Owner         struct {
			User struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				Person struct {
					Email string `json:"email"`
				} `json:"person"`
			} `json:"user"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil || wire.AccessToken == "" {
		return nil, newError(Notion, "exchange_code", resp.StatusCode, "token response missing access_token", err)
	}

	// Notion workspace tokens do not expire and cannot be refreshed; the
	// identity rides along in the exchange response itself.
	return &TokenGrant{
		AccessToken:    wire.AccessToken,
		TokenType:      "bearer",
		ProviderUserID: wire.Owner.User.ID,
		ProviderEmail:  wire.Owner.User.Person.Email,
		ProviderName:   wire.Owner.User.Name,
	}, nil
}

func (n *notionAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	_, _ = ctx, refreshToken
	return nil, newError(Notion, "refresh_token", 0, "notion tokens are not refreshable", nil)
}

func (n *notionAdapter) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	return n.http.getJSON(ctx, Notion, "user_info", n.userInfoURL, accessToken, map[string]string{
		"Notion-Version": notionVersion,
	})
}

func (n *notionAdapter) ValidateToken(ctx context.Context, accessToken string) bool {
	info, err := n.UserInfo(ctx, accessToken)
	if err != nil {
		return false
	}
	return claimString(info, "id") != ""
}

func (n *notionAdapter) AvailableScopes() []ScopeInfo { return notionScopeCatalog }

func (n *notionAdapter) ValidateScopes(requested []string) (bool, []string) {
	return validateAgainstCatalog(requested, notionScopeCatalog)
}

// RevokeToken: Notion exposes no revocation endpoint; tokens die when the
// user removes the integration from their workspace.
func (n *notionAdapter) RevokeToken(ctx context.Context, token, tokenType string) bool {
	_, _, _ = ctx, token, tokenType
	return true
}
