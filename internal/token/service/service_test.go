package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/clock"
	"github.com/porterhq/porter/internal/provider"
	"github.com/porterhq/porter/internal/refreshlock"
	"github.com/porterhq/porter/internal/token/crypto"
	"github.com/porterhq/porter/internal/token/domain"
	"github.com/porterhq/porter/internal/token/repository"
	"github.com/porterhq/porter/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	name       string
	grant      *provider.TokenGrant
	refreshErr error
	calls      int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) AuthorizationURL(state string, scopes []string, extra map[string]string) (string, error) {
	return "https://example.com/auth?state=" + state, nil
}

func (f *fakeAdapter) ExchangeCode(ctx context.Context, code string) (*provider.TokenGrant, error) {
	return f.grant, nil
}

func (f *fakeAdapter) RefreshAccessToken(ctx context.Context, refreshToken string) (*provider.TokenGrant, error) {
	f.calls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.grant, nil
}

func (f *fakeAdapter) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	return map[string]any{"id": "user-1"}, nil
}

func (f *fakeAdapter) ValidateToken(ctx context.Context, accessToken string) bool { return true }

func (f *fakeAdapter) AvailableScopes() []provider.ScopeInfo { return nil }

func (f *fakeAdapter) ValidateScopes(requested []string) (bool, []string) { return true, nil }

func (f *fakeAdapter) RevokeToken(ctx context.Context, token, tokenType string) bool { return true }

func newTestStore(t *testing.T, fake *clock.FakeClock) domain.Store {
	t.Helper()

	dbConn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&domain.Token{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cipher, err := crypto.New("test-key")
	require.NoError(t, err)

	return New(Params{
		DB:     dbConn,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Cipher: cipher,
		Clock:  fake,
		Guard:  refreshlock.NewGuard(nil, 30*time.Second),
		Config: Config{
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 365 * 24 * time.Hour,
		},
	})
}

func strptr(s string) *string { return &s }

func int64ptr(n int64) *int64 { return &n }

func TestStorePersistsAccessAndRefreshRows(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	tokens, err := store.Store(context.Background(), 100, &provider.TokenGrant{
		AccessToken:  "access-plain",
		RefreshToken: strptr("refresh-plain"),
		ExpiresIn:    int64ptr(3600),
		Scope:        "a b",
	})
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	access, err := store.GetValid(context.Background(), 100, domain.TypeAccess)
	require.NoError(t, err)
	require.NotNil(t, access)
	assert.NotEqual(t, "access-plain", access.Ciphertext)

	plaintext, err := store.Decrypt(access)
	require.NoError(t, err)
	assert.Equal(t, "access-plain", plaintext)

	refresh, err := store.GetValid(context.Background(), 100, domain.TypeRefresh)
	require.NoError(t, err)
	require.NotNil(t, refresh)
	require.NotNil(t, refresh.ExpiresAt)
	assert.Equal(t, fake.Now().Add(365*24*time.Hour), refresh.ExpiresAt.UTC())
}

func TestStoreWithoutRefreshToken(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	tokens, err := store.Store(context.Background(), 100, &provider.TokenGrant{
		AccessToken: "access-only",
	})
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	refresh, err := store.GetValid(context.Background(), 100, domain.TypeRefresh)
	require.NoError(t, err)
	assert.Nil(t, refresh)
}

func TestGetValidExpiryBoundary(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	_, err := store.Store(context.Background(), 100, &provider.TokenGrant{
		AccessToken: "short-lived",
		ExpiresIn:   int64ptr(10),
	})
	require.NoError(t, err)

	fake.Advance(9 * time.Second)
	access, err := store.GetValid(context.Background(), 100, domain.TypeAccess)
	require.NoError(t, err)
	assert.NotNil(t, access, "token expiring in 1s is still valid")

	fake.Advance(2 * time.Second)
	access, err = store.GetValid(context.Background(), 100, domain.TypeAccess)
	require.NoError(t, err)
	assert.Nil(t, access, "token expired 1s ago is never valid")
}

func TestRefreshWithoutRefreshTokenIsNotAnError(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	adapter := &fakeAdapter{name: provider.Google}
	result, err := store.Refresh(context.Background(), 100, adapter)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoRefreshToken, result.Outcome)
	assert.Zero(t, adapter.calls, "adapter is never called without a refresh token")
}

func TestRefreshStoresNewAccessToken(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	_, err := store.Store(context.Background(), 100, &provider.TokenGrant{
		AccessToken:  "old-access",
		RefreshToken: strptr("the-refresh"),
		ExpiresIn:    int64ptr(60),
	})
	require.NoError(t, err)

	fake.Advance(2 * time.Minute) // old access token lapses

	adapter := &fakeAdapter{
		name: provider.Google,
		grant: &provider.TokenGrant{
			AccessToken: "new-access",
			ExpiresIn:   int64ptr(3600),
		},
	}
	result, err := store.Refresh(context.Background(), 100, adapter)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRefreshed, result.Outcome)
	require.NotNil(t, result.Token)

	plaintext, err := store.Decrypt(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "new-access", plaintext)

	// The original refresh token survives unless the provider rotates it.
	refresh, err := store.GetValid(context.Background(), 100, domain.TypeRefresh)
	require.NoError(t, err)
	require.NotNil(t, refresh)
	refreshPlain, err := store.Decrypt(refresh)
	require.NoError(t, err)
	assert.Equal(t, "the-refresh", refreshPlain)
}

func TestRefreshPersistsRotatedRefreshToken(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	_, err := store.Store(context.Background(), 100, &provider.TokenGrant{
		AccessToken:  "old-access",
		RefreshToken: strptr("refresh-v1"),
	})
	require.NoError(t, err)

	fake.Advance(time.Second)
	adapter := &fakeAdapter{
		name: provider.Microsoft,
		grant: &provider.TokenGrant{
			AccessToken:  "new-access",
			RefreshToken: strptr("refresh-v2"),
		},
	}
	result, err := store.Refresh(context.Background(), 100, adapter)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRefreshed, result.Outcome)

	refresh, err := store.GetValid(context.Background(), 100, domain.TypeRefresh)
	require.NoError(t, err)
	refreshPlain, err := store.Decrypt(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh-v2", refreshPlain)
}

func TestInvalidateExpiresRowInPlace(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	_, err := store.Store(context.Background(), 100, &provider.TokenGrant{
		AccessToken: "access",
		ExpiresIn:   int64ptr(3600),
	})
	require.NoError(t, err)

	require.NoError(t, store.Invalidate(context.Background(), 100, domain.TypeAccess))

	access, err := store.GetValid(context.Background(), 100, domain.TypeAccess)
	require.NoError(t, err)
	assert.Nil(t, access)

	// The row survives invalidation; only cleanup removes it.
	count, err := store.CleanupExpired(context.Background(), fake.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRevokeAllDeletesEverything(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	_, err := store.Store(context.Background(), 100, &provider.TokenGrant{
		AccessToken:  "access",
		RefreshToken: strptr("refresh"),
	})
	require.NoError(t, err)

	require.NoError(t, store.RevokeAll(context.Background(), 100))

	access, err := store.GetValid(context.Background(), 100, domain.TypeAccess)
	require.NoError(t, err)
	assert.Nil(t, access)
	refresh, err := store.GetValid(context.Background(), 100, domain.TypeRefresh)
	require.NoError(t, err)
	assert.Nil(t, refresh)
}

func TestCleanupExpiredCountsOnlyExpiredRows(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestStore(t, fake)

	_, err := store.Store(context.Background(), 100, &provider.TokenGrant{
		AccessToken: "dies-soon",
		ExpiresIn:   int64ptr(10),
	})
	require.NoError(t, err)
	_, err = store.Store(context.Background(), 200, &provider.TokenGrant{
		AccessToken:  "lives-long",
		RefreshToken: strptr("refresh"),
		ExpiresIn:    int64ptr(86400),
	})
	require.NoError(t, err)

	fake.Advance(time.Minute)
	count, err := store.CleanupExpired(context.Background(), fake.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
