package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

type authStyle int

const (
	authStyleForm  authStyle = iota // client credentials in the form body
	authStyleBasic                  // HTTP Basic auth (Notion)
)

// wireToken mirrors the token endpoint response shape shared by all four
// providers; optional fields are pointers so absence survives normalization.
type wireToken struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	ExpiresIn    *int64  `json:"expires_in"`
	Scope        string  `json:"scope"`
	TokenType    string  `json:"token_type"`
}

type httpClient struct {
	client *http.Client
}

func newHTTPClient() httpClient {
	return httpClient{client: &http.Client{Timeout: requestTimeout}}
}

// postForm performs a token-endpoint POST and normalizes the response.
// Timeouts and non-2xx responses are equivalent failures.
func (c httpClient) postForm(ctx context.Context, providerName, op, endpoint string, form url.Values, headers map[string]string) (*wireToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, newError(providerName, op, 0, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newError(providerName, op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(providerName, op, resp.StatusCode, "read response", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newError(providerName, op, resp.StatusCode, truncate(string(body), 256), nil)
	}

	var token wireToken
	if err := json.Unmarshal(body, &token); err == nil && token.AccessToken != "" {
		return &token, nil
	}

	// A few providers answer form-encoded despite the Accept header.
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, newError(providerName, op, resp.StatusCode, "unparseable token response", err)
	}
	token.AccessToken = values.Get("access_token")
	token.Scope = values.Get("scope")
	token.TokenType = values.Get("token_type")
	if refresh := values.Get("refresh_token"); refresh != "" {
		token.RefreshToken = &refresh
	}
	if token.AccessToken == "" {
		return nil, newError(providerName, op, resp.StatusCode, "token response missing access_token", nil)
	}
	return &token, nil
}

// getJSON fetches a bearer-authenticated JSON document.
func (c httpClient) getJSON(ctx context.Context, providerName, op, endpoint, accessToken string, headers map[string]string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newError(providerName, op, 0, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newError(providerName, op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(providerName, op, resp.StatusCode, "read response", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, newError(providerName, op, resp.StatusCode, truncate(string(body), 256), nil)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newError(providerName, op, resp.StatusCode, "unparseable response", err)
	}
	return payload, nil
}

// postRevoke is a best-effort token revocation call.
func (c httpClient) postRevoke(ctx context.Context, endpoint string, form url.Values) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
}

func buildAuthURL(rawURL, clientID, redirectURI, state string, scopes []string, params map[string]string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("response_type", "code")
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	if len(scopes) > 0 {
		query.Set("scope", strings.Join(scopes, " "))
	}
	query.Set("state", state)
	for key, value := range params {
		query.Set(key, value)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func claimString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := payload[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case json.Number:
			return v.String()
		case float64:
			return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
