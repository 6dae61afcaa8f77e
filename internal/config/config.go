package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TokenEncryptionKey protects persisted OAuth tokens at rest.
	TokenEncryptionKey string

	// StateTTL bounds how long an initiated OAuth flow may wait for its callback.
	StateTTL time.Duration

	// AccessTokenTTL is used when a provider omits expires_in.
	AccessTokenTTL time.Duration
	// GoogleAccessTokenTTL overrides the default for Google responses that
	// omit expires_in. Kept configurable rather than assumed.
	GoogleAccessTokenTTL time.Duration
	// RefreshTokenTTL bounds refresh tokens, which providers rarely expire explicitly.
	RefreshTokenTTL time.Duration

	AuditRetentionDays int

	AllowedRedirectURIs []string

	Providers map[string]ProviderCredentials
}

// ProviderCredentials carries the per-provider OAuth client registration.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Configured reports whether the credentials are usable.
func (p ProviderCredentials) Configured() bool {
	return strings.TrimSpace(p.ClientID) != "" && strings.TrimSpace(p.ClientSecret) != ""
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "porter"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "porter"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		TokenEncryptionKey: strings.TrimSpace(getenv("TOKEN_ENCRYPTION_KEY", "")),

		StateTTL:             getenvDuration("OAUTH_STATE_TTL", time.Hour),
		AccessTokenTTL:       getenvDuration("ACCESS_TOKEN_TTL", time.Hour),
		GoogleAccessTokenTTL: getenvDuration("GOOGLE_ACCESS_TOKEN_TTL", 7*24*time.Hour),
		RefreshTokenTTL:      getenvDuration("REFRESH_TOKEN_TTL", 365*24*time.Hour),

		AuditRetentionDays: getenvInt("AUDIT_RETENTION_DAYS", 90),

		AllowedRedirectURIs: getenvList("OAUTH_ALLOWED_REDIRECT_URIS"),

		Providers: loadProviders(),
	}

	return cfg
}

func loadProviders() map[string]ProviderCredentials {
	providers := make(map[string]ProviderCredentials)
	for _, name := range []string{"google", "microsoft", "notion", "youtube"} {
		prefix := strings.ToUpper(name)
		providers[name] = ProviderCredentials{
			ClientID:     strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET")),
			RedirectURI:  strings.TrimSpace(os.Getenv(prefix + "_REDIRECT_URI")),
		}
	}
	// YouTube rides on the Google OAuth application unless registered separately.
	if !providers["youtube"].Configured() {
		providers["youtube"] = providers["google"]
	}
	return providers
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
