package service

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/clock"
	"github.com/porterhq/porter/internal/consent/domain"
	"github.com/porterhq/porter/internal/consent/repository"
	"github.com/porterhq/porter/internal/migration"
	"github.com/porterhq/porter/pkg/db"
	"github.com/porterhq/porter/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLedger(t *testing.T, fake *clock.FakeClock) domain.Ledger {
	t.Helper()

	dbConn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(&domain.Consent{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
	})
}

// newMigratedLedger builds the ledger over the schema the production
// migrations create, instead of the one AutoMigrate derives from the model.
func newMigratedLedger(t *testing.T, fake *clock.FakeClock) domain.Ledger {
	t.Helper()

	dbConn, err := db.NewTest()
	require.NoError(t, err)

	ddl, err := fs.ReadFile(migration.Files(), "migrations/000001_init.up.sql")
	require.NoError(t, err)
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, dbConn.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
	})
}

func grant(t *testing.T, ledger domain.Ledger, userID, integrationID snowflake.ID, scope string) *domain.Consent {
	t.Helper()
	consent, err := ledger.Record(context.Background(), domain.RecordRequest{
		UserID:        userID,
		IntegrationID: integrationID,
		ScopeName:     scope,
		Status:        domain.StatusGranted,
	})
	require.NoError(t, err)
	return consent
}

func TestRecordStampsGrantedAt(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newTestLedger(t, fake)

	consent := grant(t, ledger, 1, 10, "openid")
	require.NotNil(t, consent.GrantedAt)
	assert.Equal(t, fake.Now(), consent.GrantedAt.UTC())
	assert.Nil(t, consent.RevokedAt)
}

func TestRecordRejectsEmptyScope(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newTestLedger(t, fake)

	_, err := ledger.Record(context.Background(), domain.RecordRequest{
		UserID:        1,
		IntegrationID: 10,
		ScopeName:     "  ",
		Status:        domain.StatusGranted,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestRevokeIsAdditiveNotDestructive(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newTestLedger(t, fake)

	consent := grant(t, ledger, 1, 10, "openid")

	fake.Advance(time.Hour)
	require.NoError(t, ledger.Revoke(context.Background(), 1, consent.ID, "user requested"))

	// The row survives revocation with status flipped and revoked_at set.
	page, err := ledger.ListForUser(context.Background(), 1, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, page.Consents, 1)
	assert.Equal(t, domain.StatusRevoked, page.Consents[0].Status)
	require.NotNil(t, page.Consents[0].RevokedAt)
	assert.Equal(t, "user requested", page.Consents[0].Reason)

	// A second revoke finds nothing left to flip.
	assert.ErrorIs(t, ledger.Revoke(context.Background(), 1, consent.ID, ""), domain.ErrNotFound)
}

func TestRevokeScopedToOwner(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newTestLedger(t, fake)

	consent := grant(t, ledger, 1, 10, "openid")

	// Another user naming this consent id gets not-found, not a revocation.
	assert.ErrorIs(t, ledger.Revoke(context.Background(), 2, consent.ID, "hijack"), domain.ErrNotFound)

	ok, err := ledger.CheckScopeConsent(context.Background(), 1, 10, "openid")
	require.NoError(t, err)
	assert.True(t, ok, "owner's consent stays granted")

	require.NoError(t, ledger.Revoke(context.Background(), 1, consent.ID, "user requested"))
}

func TestRevokeAllForUserScopedToIntegration(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newTestLedger(t, fake)

	grant(t, ledger, 1, 10, "openid")
	grant(t, ledger, 1, 10, "email")
	grant(t, ledger, 1, 20, "calendar")

	count, err := ledger.RevokeAllForUser(context.Background(), 1, 10, "integration revoked")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	ok, err := ledger.CheckScopeConsent(context.Background(), 1, 10, "openid")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ledger.CheckScopeConsent(context.Background(), 1, 20, "calendar")
	require.NoError(t, err)
	assert.True(t, ok, "other integrations keep their consents")
}

func TestSummarize(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newTestLedger(t, fake)

	grant(t, ledger, 1, 10, "openid")
	grant(t, ledger, 1, 10, "email")
	denied, err := ledger.Record(context.Background(), domain.RecordRequest{
		UserID:        1,
		IntegrationID: 20,
		ScopeName:     "calendar",
		Status:        domain.StatusDenied,
	})
	require.NoError(t, err)
	require.NotNil(t, denied)

	revoked := grant(t, ledger, 1, 20, "tasks")
	require.NoError(t, ledger.Revoke(context.Background(), 1, revoked.ID, ""))

	summary, err := ledger.Summarize(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Total)
	assert.Equal(t, int64(2), summary.Granted)
	assert.Equal(t, int64(1), summary.Denied)
	assert.Equal(t, int64(1), summary.Revoked)
	assert.Len(t, summary.PerIntegration, 2)
}

func TestLedgerOnMigratedSchema(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newMigratedLedger(t, fake)

	first := grant(t, ledger, 1, 10, "email")
	grant(t, ledger, 1, 10, "calendar.readonly")

	ok, err := ledger.CheckScopeConsent(context.Background(), 1, 10, "email")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, ledger.Revoke(context.Background(), 1, first.ID, "user_requested"))

	revoked, err := ledger.ListForUser(context.Background(), 1, domain.ListRequest{Status: domain.StatusRevoked})
	require.NoError(t, err)
	require.Len(t, revoked.Consents, 1)
	assert.Equal(t, first.ID, revoked.Consents[0].ID)

	count, err := ledger.RevokeAllForUser(context.Background(), 1, 10, "disconnect")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	ok, err = ledger.CheckScopeConsent(context.Background(), 1, 10, "calendar.readonly")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListForUserPaginates(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newTestLedger(t, fake)

	grant(t, ledger, 1, 10, "openid")
	fake.Advance(time.Second)
	grant(t, ledger, 1, 10, "email")
	fake.Advance(time.Second)
	grant(t, ledger, 1, 20, "calendar")

	first, err := ledger.ListForUser(context.Background(), 1, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.Consents, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)
	assert.Equal(t, "calendar", first.Consents[0].ScopeName, "newest first")

	second, err := ledger.ListForUser(context.Background(), 1, domain.ListRequest{
		Pagination: pagination.Pagination{PageToken: first.NextPageToken, PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, second.Consents, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "openid", second.Consents[0].ScopeName)
}

func TestListForUserRejectsBadPageToken(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ledger := newTestLedger(t, fake)

	_, err := ledger.ListForUser(context.Background(), 1, domain.ListRequest{
		Pagination: pagination.Pagination{PageToken: "not-a-cursor"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
