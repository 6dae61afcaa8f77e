package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"strings"
)

const stateTokenBytes = 32

// GenerateStateToken returns a URL-safe random token with at least 32 bytes
// of entropy.
func GenerateStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateCSRFToken mints a random token for form-level CSRF protection.
func GenerateCSRFToken() (string, error) {
	return GenerateStateToken()
}

// ValidateCSRFToken compares tokens in constant time to avoid timing
// side-channels.
func ValidateCSRFToken(token, expected string) bool {
	if token == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// ValidateRedirectURI accepts a URI only when it exactly matches an
// allowlist entry or is a path under one.
func ValidateRedirectURI(uri string, allowlist []string) bool {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return false
	}
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	for _, allowed := range allowlist {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if uri == allowed || strings.HasPrefix(uri, strings.TrimSuffix(allowed, "/")+"/") {
			return true
		}
	}
	return false
}

// ScopeValidation is the result of checking requested scopes against an
// allowed set and a required set.
type ScopeValidation struct {
	IsValid         bool     `json:"is_valid"`
	ValidScopes     []string `json:"valid_scopes"`
	InvalidScopes   []string `json:"invalid_scopes"`
	MissingRequired []string `json:"missing_required"`
}

// ValidateScopes checks that requested ⊆ allowed and required ⊆ requested.
func ValidateScopes(requested, allowed, required []string) ScopeValidation {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, scope := range allowed {
		allowedSet[scope] = struct{}{}
	}
	requestedSet := make(map[string]struct{}, len(requested))

	result := ScopeValidation{IsValid: true}
	for _, scope := range requested {
		requestedSet[scope] = struct{}{}
		if _, ok := allowedSet[scope]; ok {
			result.ValidScopes = append(result.ValidScopes, scope)
		} else {
			result.InvalidScopes = append(result.InvalidScopes, scope)
			result.IsValid = false
		}
	}
	for _, scope := range required {
		if _, ok := requestedSet[scope]; !ok {
			result.MissingRequired = append(result.MissingRequired, scope)
			result.IsValid = false
		}
	}
	return result
}
