package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRedirectURI(t *testing.T) {
	allowlist := []string{"https://app.example.com/oauth/done", "https://admin.example.com"}

	tests := []struct {
		name string
		uri  string
		want bool
	}{
		{"exact match", "https://app.example.com/oauth/done", true},
		{"path under allowed entry", "https://admin.example.com/integrations", true},
		{"trailing slash on allowed entry", "https://admin.example.com/", true},
		{"different host", "https://evil.example.com/oauth/done", false},
		{"prefix host trick", "https://app.example.com.evil.net/oauth/done", false},
		{"scheme downgrade", "http://app.example.com/oauth/done", false},
		{"relative uri", "/oauth/done", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateRedirectURI(tt.uri, allowlist))
		})
	}
}

func TestValidateScopesSets(t *testing.T) {
	allowed := []string{"email", "calendar.readonly", "drive.readonly"}
	required := []string{"email"}

	result := ValidateScopes([]string{"email", "calendar.readonly"}, allowed, required)
	assert.True(t, result.IsValid)
	assert.Equal(t, []string{"email", "calendar.readonly"}, result.ValidScopes)
	assert.Empty(t, result.InvalidScopes)
	assert.Empty(t, result.MissingRequired)

	result = ValidateScopes([]string{"calendar.readonly", "gmail.send"}, allowed, required)
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"gmail.send"}, result.InvalidScopes)
	assert.Equal(t, []string{"email"}, result.MissingRequired)
}

func TestCSRFTokenCompare(t *testing.T) {
	token, err := GenerateCSRFToken()
	require.NoError(t, err)
	other, err := GenerateCSRFToken()
	require.NoError(t, err)

	assert.True(t, ValidateCSRFToken(token, token))
	assert.False(t, ValidateCSRFToken(token, other))
	assert.False(t, ValidateCSRFToken("", token))
	assert.False(t, ValidateCSRFToken(token, ""))
}
