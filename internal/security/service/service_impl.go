package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/clock"
	"github.com/porterhq/porter/internal/reqmeta"
	"github.com/porterhq/porter/internal/security/domain"
	"github.com/porterhq/porter/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Config controls state lifetime.
type Config struct {
	StateTTL time.Duration
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Clock  clock.Clock
	Config Config
}

type Guard struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
	cfg   Config
}

func New(p Params) domain.Guard {
	cfg := p.Config
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = time.Hour
	}
	return &Guard{
		db:    p.DB,
		log:   p.Log.Named("security.guard"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
		cfg:   cfg,
	}
}

func (g *Guard) CreateState(ctx context.Context, req domain.CreateStateRequest) (*domain.OAuthState, error) {
	token, err := domain.GenerateStateToken()
	if err != nil {
		return nil, &domain.SecurityError{Check: "generate_state_token", Err: err}
	}

	now := g.clock.Now()
	state := &domain.OAuthState{
		ID:          g.genID.Generate(),
		StateToken:  token,
		Provider:    strings.ToLower(strings.TrimSpace(req.Provider)),
		UserID:      req.UserID,
		RedirectURI: req.RedirectURI,
		Scopes:      datatypes.NewJSONSlice(req.Scopes),
		Metadata:    datatypes.JSONMap(req.Metadata),
		ExpiresAt:   now.Add(g.cfg.StateTTL),
		CreatedAt:   now,
	}

	if err := g.repo.InsertState(ctx, g.db, state); err != nil {
		return nil, &domain.SecurityError{Check: "create_state", Err: err}
	}
	return state, nil
}

func (g *Guard) GetByToken(ctx context.Context, stateToken string) (*domain.OAuthState, error) {
	state, err := g.repo.FindStateByToken(ctx, g.db, stateToken)
	if err != nil {
		return nil, &domain.SecurityError{Check: "get_state", Err: err}
	}
	return state, nil
}

// ValidateState rejects unknown, used, and expired states. Every rejection is
// CSRF-suspect and logged at warning severity even though double-clicked
// connect buttons make them routine.
func (g *Guard) ValidateState(ctx context.Context, stateToken, providerName string, markUsed bool) (*domain.OAuthState, error) {
	state, err := g.GetByToken(ctx, stateToken)
	if err != nil {
		return nil, err
	}

	providerName = strings.ToLower(strings.TrimSpace(providerName))
	switch {
	case state == nil:
		return nil, g.rejectState(ctx, providerName, domain.StateNotFound)
	case providerName != "" && state.Provider != providerName:
		return nil, g.rejectState(ctx, providerName, domain.StateNotFound)
	case state.IsUsed:
		return nil, g.rejectState(ctx, state.Provider, domain.StateAlreadyUsed)
	case !state.ExpiresAt.After(g.clock.Now()):
		return nil, g.rejectState(ctx, state.Provider, domain.StateExpired)
	}

	if markUsed {
		if err := g.MarkStateUsed(ctx, state.ID); err != nil {
			return nil, err
		}
		state.IsUsed = true
	}
	return state, nil
}

func (g *Guard) MarkStateUsed(ctx context.Context, stateID snowflake.ID) error {
	if err := g.repo.MarkStateUsed(ctx, g.db, stateID); err != nil {
		return &domain.SecurityError{Check: "mark_state_used", Err: err}
	}
	return nil
}

func (g *Guard) CleanupExpiredStates(ctx context.Context, now time.Time) (int64, error) {
	count, err := g.repo.DeleteExpiredStates(ctx, g.db, now)
	if err != nil {
		return 0, &domain.SecurityError{Check: "cleanup_states", Err: err}
	}
	return count, nil
}

func (g *Guard) LogSecurityEvent(ctx context.Context, event domain.SecurityEvent) (*domain.AuditLog, error) {
	details := make(map[string]any, len(event.Details)+1)
	for key, value := range event.Details {
		if key != "" {
			details[key] = value
		}
	}
	if event.Err != nil {
		details["error"] = event.Err.Error()
	}

	ip := event.IPAddress
	if ip == "" {
		ip = reqmeta.IPAddressFromContext(ctx)
	}
	ua := event.UserAgent
	if ua == "" {
		ua = reqmeta.UserAgentFromContext(ctx)
	}

	entry := &domain.AuditLog{
		ID:            g.genID.Generate(),
		UserID:        event.UserID,
		Provider:      event.Provider,
		IntegrationID: event.IntegrationID,
		Action:        event.Action,
		Status:        event.Status,
		IPAddress:     ip,
		UserAgent:     ua,
		Details:       datatypes.JSONMap(details),
		CreatedAt:     g.clock.Now(),
	}

	if err := g.repo.InsertAuditLog(ctx, g.db, entry); err != nil {
		g.log.Warn("failed to write audit log",
			zap.String("action", event.Action),
			zap.Error(err),
		)
		return nil, &domain.SecurityError{Check: "audit_log", Err: err}
	}
	return entry, nil
}

func (g *Guard) ListAuditLogs(ctx context.Context, req domain.ListAuditLogsRequest) (*domain.AuditLogPage, error) {
	cursor, err := decodeAuditCursor(req.PageToken)
	if err != nil {
		return nil, err
	}

	limit := clampPageSize(req.PageSize)
	entries, err := g.repo.ListAuditLogs(ctx, g.db, domain.AuditFilter{
		UserID:   req.UserID,
		Provider: req.Provider,
		Action:   req.Action,
		Cursor:   cursor,
		Limit:    limit,
	})
	if err != nil {
		return nil, &domain.SecurityError{Check: "list_audit_logs", Err: err}
	}

	pageInfo := pagination.BuildCursorPageInfo(entries, limit, func(entry *domain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        entry.ID.String(),
			CreatedAt: entry.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(entries) > limit {
		entries = entries[:limit]
	}

	return &domain.AuditLogPage{PageInfo: *pageInfo, Logs: entries}, nil
}

func decodeAuditCursor(token string) (*domain.AuditCursor, error) {
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
	return &domain.AuditCursor{ID: id, CreatedAt: createdAt}, nil
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

func (g *Guard) CleanupOldAuditLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := g.clock.Now().AddDate(0, 0, -retentionDays)
	count, err := g.repo.DeleteAuditLogsBefore(ctx, g.db, cutoff)
	if err != nil {
		return 0, &domain.SecurityError{Check: "cleanup_audit_logs", Err: err}
	}
	return count, nil
}

func (g *Guard) rejectState(ctx context.Context, providerName string, reason domain.StateReason) error {
	g.log.Warn("rejected oauth state token",
		zap.String("provider", providerName),
		zap.String("reason", string(reason)),
		zap.String("ip", reqmeta.IPAddressFromContext(ctx)),
	)
	return &domain.StateError{Reason: reason}
}
