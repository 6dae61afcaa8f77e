package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/clock"
	"github.com/porterhq/porter/internal/consent/domain"
	"github.com/porterhq/porter/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Ledger struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Ledger {
	return &Ledger{
		db:    p.DB,
		log:   p.Log.Named("consent.ledger"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (l *Ledger) Record(ctx context.Context, req domain.RecordRequest) (*domain.Consent, error) {
	scopeName := strings.TrimSpace(req.ScopeName)
	if scopeName == "" {
		return nil, domain.ErrInvalidScope
	}

	now := l.clock.Now()
	consent := &domain.Consent{
		ID:            l.genID.Generate(),
		IntegrationID: req.IntegrationID,
		UserID:        req.UserID,
		ScopeName:     scopeName,
		Status:        req.Status,
		Reason:        strings.TrimSpace(req.Reason),
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Metadata:      datatypes.JSONMap(req.Metadata),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Status == domain.StatusGranted {
		consent.GrantedAt = &now
	}
	if req.Status == domain.StatusRevoked {
		consent.RevokedAt = &now
	}

	if err := l.repo.Insert(ctx, l.db, consent); err != nil {
		return nil, &domain.Error{Op: "record", Err: err}
	}
	return consent, nil
}

func (l *Ledger) ListForUser(ctx context.Context, userID snowflake.ID, req domain.ListRequest) (*domain.Page, error) {
	cursor, err := decodeListCursor(req.PageToken)
	if err != nil {
		return nil, err
	}
	limit := clampPageSize(req.PageSize)

	consents, err := l.repo.List(ctx, l.db, userID, domain.ListFilter{
		IntegrationID: req.IntegrationID,
		Status:        req.Status,
		Cursor:        cursor,
		Limit:         limit,
	})
	if err != nil {
		return nil, &domain.Error{Op: "list", Err: err}
	}

	pageInfo := pagination.BuildCursorPageInfo(consents, limit, func(consent *domain.Consent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        consent.ID.String(),
			CreatedAt: consent.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(consents) > limit {
		consents = consents[:limit]
	}
	return &domain.Page{PageInfo: *pageInfo, Consents: consents}, nil
}

func (l *Ledger) Revoke(ctx context.Context, userID, consentID snowflake.ID, reason string) error {
	err := l.repo.MarkRevoked(ctx, l.db, userID, consentID, strings.TrimSpace(reason), l.clock.Now())
	if err == domain.ErrNotFound {
		return err
	}
	if err != nil {
		return &domain.Error{Op: "revoke", ConsentID: consentID, Err: err}
	}
	return nil
}

func (l *Ledger) RevokeAllForUser(ctx context.Context, userID snowflake.ID, integrationID snowflake.ID, reason string) (int64, error) {
	count, err := l.repo.BulkRevoke(ctx, l.db, userID, integrationID, strings.TrimSpace(reason), l.clock.Now())
	if err != nil {
		return 0, &domain.Error{Op: "revoke_all", Err: err}
	}
	return count, nil
}

func (l *Ledger) CheckScopeConsent(ctx context.Context, userID, integrationID snowflake.ID, scopeName string) (bool, error) {
	count, err := l.repo.CountGranted(ctx, l.db, userID, integrationID, strings.TrimSpace(scopeName))
	if err != nil {
		return false, &domain.Error{Op: "check_scope", Err: err}
	}
	return count > 0, nil
}

func (l *Ledger) Summarize(ctx context.Context, userID snowflake.ID) (*domain.Summary, error) {
	consents, err := l.repo.List(ctx, l.db, userID, domain.ListFilter{})
	if err != nil {
		return nil, &domain.Error{Op: "summarize", Err: err}
	}

	summary := &domain.Summary{
		PerIntegration: make(map[string]domain.IntegrationCounts),
	}
	for _, consent := range consents {
		summary.Total++
		counts := summary.PerIntegration[consent.IntegrationID.String()]
		switch consent.Status {
		case domain.StatusGranted:
			summary.Granted++
			counts.Granted++
		case domain.StatusDenied:
			summary.Denied++
			counts.Denied++
		case domain.StatusRevoked:
			summary.Revoked++
			counts.Revoked++
		}
		summary.PerIntegration[consent.IntegrationID.String()] = counts
	}
	return summary, nil
}

func decodeListCursor(token string) (*domain.ListCursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.ListCursor{ID: id, CreatedAt: createdAt}, nil
}

func clampPageSize(size int) int {
	if size <= 0 {
		return 50
	}
	if size > 250 {
		return 250
	}
	return size
}
