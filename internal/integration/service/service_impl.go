package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/clock"
	consentdomain "github.com/porterhq/porter/internal/consent/domain"
	"github.com/porterhq/porter/internal/integration/domain"
	"github.com/porterhq/porter/internal/observability/metrics"
	"github.com/porterhq/porter/internal/provider"
	"github.com/porterhq/porter/internal/reqmeta"
	secdomain "github.com/porterhq/porter/internal/security/domain"
	tokendomain "github.com/porterhq/porter/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Config carries the orchestration policy knobs.
type Config struct {
	AllowedRedirectURIs []string
	AuditRetentionDays  int
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Registry *provider.Registry
	Repo     domain.Repository
	Tokens   tokendomain.Store
	Consents consentdomain.Ledger
	Guard    secdomain.Guard
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Config   Config
}

type Orchestrator struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	registry *provider.Registry
	repo     domain.Repository
	tokens   tokendomain.Store
	consents consentdomain.Ledger
	guard    secdomain.Guard
	clock    clock.Clock
	metrics  *metrics.Metrics
	cfg      Config
}

func New(p Params) domain.Orchestrator {
	return &Orchestrator{
		db:       p.DB,
		log:      p.Log.Named("integration.orchestrator"),
		genID:    p.GenID,
		registry: p.Registry,
		repo:     p.Repo,
		tokens:   p.Tokens,
		consents: p.Consents,
		guard:    p.Guard,
		clock:    p.Clock,
		metrics:  p.Metrics,
		cfg:      p.Config,
	}
}

// auditedOp describes one orchestrator operation for uniform audit logging.
// The wrapped function may fill in fields (integration id, details) as the
// flow learns them.
type auditedOp struct {
	action        string
	failureAction string
	provider      string
	userID        *snowflake.ID
	integrationID *snowflake.ID
	details       map[string]any
}

// audited runs fn and appends exactly one success or failure audit entry.
// An audit write failure is logged but never masks fn's own error.
func (o *Orchestrator) audited(ctx context.Context, op *auditedOp, fn func() error) error {
	err := fn()

	event := secdomain.SecurityEvent{
		UserID:        op.userID,
		Action:        op.action,
		Status:        secdomain.StatusSuccess,
		Provider:      op.provider,
		IntegrationID: op.integrationID,
		Details:       op.details,
		Err:           err,
	}
	if err != nil {
		event.Status = secdomain.StatusFailure
		if op.failureAction != "" {
			event.Action = op.failureAction
		}
	}

	if _, auditErr := o.guard.LogSecurityEvent(ctx, event); auditErr != nil {
		o.log.Warn("audit write failed",
			zap.String("action", event.Action),
			zap.Error(auditErr),
		)
	}
	return err
}

func (o *Orchestrator) InitiateFlow(ctx context.Context, req domain.FlowRequest) (*domain.FlowInitiation, error) {
	start := o.clock.Now()
	op := &auditedOp{
		action:   secdomain.ActionConnect,
		provider: req.Provider,
		userID:   &req.UserID,
		details:  map[string]any{"scopes": req.Scopes},
	}

	var initiation *domain.FlowInitiation
	err := o.audited(ctx, op, func() error {
		adapter, err := o.registry.Resolve(req.Provider)
		if err != nil {
			return err
		}

		if req.RedirectURI != "" && !secdomain.ValidateRedirectURI(req.RedirectURI, o.cfg.AllowedRedirectURIs) {
			return domain.ErrInvalidRedirectURI
		}

		scopes := req.Scopes
		if len(scopes) == 0 {
			scopes = requiredScopes(adapter)
		}
		if ok, invalid := adapter.ValidateScopes(scopes); !ok {
			return &domain.ScopeError{Provider: adapter.Name(), Invalid: invalid}
		}

		state, err := o.guard.CreateState(ctx, secdomain.CreateStateRequest{
			Provider:    adapter.Name(),
			UserID:      &req.UserID,
			RedirectURI: req.RedirectURI,
			Scopes:      scopes,
			Metadata:    req.Metadata,
		})
		if err != nil {
			return err
		}

		authURL, err := adapter.AuthorizationURL(state.StateToken, scopes, nil)
		if err != nil {
			return err
		}

		initiation = &domain.FlowInitiation{
			AuthorizationURL: authURL,
			StateToken:       state.StateToken,
			Provider:         adapter.Name(),
			Scopes:           scopes,
		}
		return nil
	})

	o.metrics.RecordFlow(ctx, req.Provider, "initiate", err == nil)
	o.metrics.ObserveFlowDuration(ctx, req.Provider, "initiate", o.clock.Now().Sub(start))
	if err != nil {
		return nil, err
	}
	return initiation, nil
}

func (o *Orchestrator) HandleCallback(ctx context.Context, stateToken, code, providerName string) (*domain.CallbackResult, error) {
	start := o.clock.Now()

	// Some providers omit which flow the callback belongs to; the state row
	// carries it.
	if providerName == "" {
		state, err := o.guard.GetByToken(ctx, stateToken)
		if err != nil {
			return nil, err
		}
		if state == nil {
			o.metrics.RecordStateFailure(ctx, providerName)
			return nil, &secdomain.StateError{Reason: secdomain.StateNotFound}
		}
		providerName = state.Provider
	}

	op := &auditedOp{
		action:        secdomain.ActionConnect,
		failureAction: secdomain.ActionError,
		provider:      providerName,
		details:       map[string]any{},
	}

	var (
		result *domain.CallbackResult
		state  *secdomain.OAuthState
	)
	err := o.audited(ctx, op, func() error {
		var err error

		// Validate without consuming; the state stays retryable until the
		// whole flow lands.
		state, err = o.guard.ValidateState(ctx, stateToken, providerName, false)
		if err != nil {
			var stateErr *secdomain.StateError
			if errors.As(err, &stateErr) {
				o.metrics.RecordStateFailure(ctx, providerName)
			}
			return err
		}
		op.userID = state.UserID
		if state.UserID == nil {
			return domain.ErrUserUnresolved
		}

		adapter, err := o.registry.Resolve(providerName)
		if err != nil {
			return err
		}

		grant, err := adapter.ExchangeCode(ctx, code)
		if err != nil {
			return err
		}

		integration, err := o.upsert(ctx, *state.UserID, adapter.Name(), state, grant)
		if err != nil {
			return err
		}
		op.integrationID = &integration.ID

		if _, err := o.tokens.Store(ctx, integration.ID, grant); err != nil {
			return err
		}

		if err := o.activate(ctx, integration, grant); err != nil {
			return err
		}

		o.recordConsents(ctx, integration, state.Scopes)

		result = &domain.CallbackResult{
			IntegrationID: integration.ID,
			Provider:      integration.Provider,
			Status:        integration.Status,
			Scopes:        integration.Scopes,
		}
		op.details["integration_id"] = integration.ID.String()
		return nil
	})

	o.metrics.RecordFlow(ctx, providerName, "callback", err == nil)
	o.metrics.ObserveFlowDuration(ctx, providerName, "callback", o.clock.Now().Sub(start))
	if err != nil {
		return nil, err
	}

	// Consume the state last. Everything above already succeeded, so a
	// failure here is surfaced rather than leaving a replayable state silent.
	if err := o.guard.MarkStateUsed(ctx, state.ID); err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) RefreshTokens(ctx context.Context, integrationID snowflake.ID) (bool, error) {
	integration, err := o.repo.FindByID(ctx, o.db, integrationID)
	if err != nil {
		return false, &domain.Error{Op: "refresh", IntegrationID: integrationID, Err: err}
	}
	if integration == nil {
		// Already cleaned up; refreshing nothing is a no-op, not an error.
		return false, nil
	}

	op := &auditedOp{
		action:        secdomain.ActionRefresh,
		failureAction: secdomain.ActionError,
		provider:      integration.Provider,
		userID:        &integration.UserID,
		integrationID: &integration.ID,
	}

	refreshed := false
	err = o.audited(ctx, op, func() error {
		adapter, err := o.registry.Resolve(integration.Provider)
		if err != nil {
			return err
		}

		result, err := o.tokens.Refresh(ctx, integration.ID, adapter)
		if err != nil {
			o.metrics.RecordRefresh(ctx, integration.Provider, false)
			o.markExpired(ctx, integration, err)
			return err
		}

		switch result.Outcome {
		case tokendomain.OutcomeRefreshed:
			o.metrics.RecordRefresh(ctx, integration.Provider, true)
			refreshed = true
			now := o.clock.Now()
			integration.LastSyncAt = &now
			integration.UpdatedAt = now
			return o.repo.Update(ctx, o.db, integration)
		default:
			// No refresh token, or another refresh holds the lock. The
			// false return is the signal; nothing to log beyond metrics.
			return nil
		}
	})
	if err != nil {
		return false, err
	}
	return refreshed, nil
}

func (o *Orchestrator) Revoke(ctx context.Context, integrationID snowflake.ID, reason string) (bool, error) {
	integration, err := o.repo.FindByID(ctx, o.db, integrationID)
	if err != nil {
		return false, &domain.Error{Op: "revoke", IntegrationID: integrationID, Err: err}
	}
	if integration == nil || !integration.Revocable() {
		return false, nil
	}

	op := &auditedOp{
		action:        secdomain.ActionRevoke,
		provider:      integration.Provider,
		userID:        &integration.UserID,
		integrationID: &integration.ID,
		details:       map[string]any{"reason": reason},
	}

	err = o.audited(ctx, op, func() error {
		// Status flips first so a concurrent reader sees revoked even if
		// token or consent cleanup below fails mid-way.
		now := o.clock.Now()
		if integration.Metadata == nil {
			integration.Metadata = datatypes.JSONMap{}
		}
		if reason != "" {
			integration.Metadata["revocation_reason"] = reason
		}
		integration.Status = domain.StatusRevoked
		integration.UpdatedAt = now
		if err := o.repo.Update(ctx, o.db, integration); err != nil {
			return &domain.Error{Op: "revoke", IntegrationID: integration.ID, Err: err}
		}

		o.revokeAtProvider(ctx, integration)

		if err := o.tokens.RevokeAll(ctx, integration.ID); err != nil {
			return err
		}

		if _, err := o.consents.RevokeAllForUser(ctx, integration.UserID, integration.ID, reason); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) Deactivate(ctx context.Context, integrationID snowflake.ID) error {
	integration, err := o.repo.FindByID(ctx, o.db, integrationID)
	if err != nil {
		return &domain.Error{Op: "deactivate", IntegrationID: integrationID, Err: err}
	}
	if integration == nil {
		return &domain.Error{Op: "deactivate", IntegrationID: integrationID, Err: gorm.ErrRecordNotFound}
	}
	if integration.Status != domain.StatusActive {
		return &domain.Error{Op: "deactivate", IntegrationID: integrationID, Err: errors.New("integration is not active")}
	}

	integration.Status = domain.StatusInactive
	integration.UpdatedAt = o.clock.Now()
	if err := o.repo.Update(ctx, o.db, integration); err != nil {
		return &domain.Error{Op: "deactivate", IntegrationID: integrationID, Err: err}
	}
	return nil
}

func (o *Orchestrator) ListForUser(ctx context.Context, userID snowflake.ID, providerName string, activeOnly bool) ([]*domain.Integration, error) {
	query := domain.ListQuery{UserID: userID, Provider: providerName}
	if activeOnly {
		// Pending counts as active enough to show the user.
		query.Statuses = []domain.Status{domain.StatusPending, domain.StatusActive}
	}
	integrations, err := o.repo.List(ctx, o.db, query)
	if err != nil {
		return nil, &domain.Error{Op: "list", Err: err}
	}
	return integrations, nil
}

func (o *Orchestrator) SyncAll(ctx context.Context, userID *snowflake.ID) (*domain.SyncReport, error) {
	query := domain.ListQuery{Statuses: []domain.Status{domain.StatusActive}}
	if userID != nil {
		query.UserID = *userID
	}
	integrations, err := o.repo.List(ctx, o.db, query)
	if err != nil {
		return nil, &domain.Error{Op: "sync", Err: err}
	}

	report := &domain.SyncReport{Total: len(integrations)}
	for _, integration := range integrations {
		if err := o.syncOne(ctx, integration); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, domain.SyncError{
				IntegrationID: integration.ID,
				Provider:      integration.Provider,
				Message:       err.Error(),
			})
			continue
		}
		report.Successful++
	}

	event := secdomain.SecurityEvent{
		UserID: userID,
		Action: secdomain.ActionSync,
		Status: secdomain.StatusSuccess,
		Details: map[string]any{
			"total":      report.Total,
			"successful": report.Successful,
			"failed":     report.Failed,
		},
	}
	if report.Failed > 0 {
		event.Status = secdomain.StatusFailure
	}
	if _, auditErr := o.guard.LogSecurityEvent(ctx, event); auditErr != nil {
		o.log.Warn("audit write failed", zap.String("action", secdomain.ActionSync), zap.Error(auditErr))
	}
	return report, nil
}

func (o *Orchestrator) CleanupExpiredData(ctx context.Context) (*domain.CleanupReport, error) {
	now := o.clock.Now()
	report := &domain.CleanupReport{}

	// Sub-cleanups are independent; one failing does not stop the others.
	var err error
	if report.ExpiredTokens, err = o.tokens.CleanupExpired(ctx, now); err != nil {
		o.log.Warn("expired token cleanup failed", zap.Error(err))
	}
	if report.ExpiredStates, err = o.guard.CleanupExpiredStates(ctx, now); err != nil {
		o.log.Warn("expired state cleanup failed", zap.Error(err))
	}
	if report.OldAuditLogs, err = o.guard.CleanupOldAuditLogs(ctx, o.cfg.AuditRetentionDays); err != nil {
		o.log.Warn("audit log cleanup failed", zap.Error(err))
	}
	return report, nil
}

// upsert creates or reuses the single non-revoked integration for the
// (user, provider) pair, resetting it to pending with the new grant's shape.
func (o *Orchestrator) upsert(ctx context.Context, userID snowflake.ID, providerName string, state *secdomain.OAuthState, grant *provider.TokenGrant) (*domain.Integration, error) {
	now := o.clock.Now()
	metadata := grantMetadata(grant)

	existing, err := o.repo.FindNonRevoked(ctx, o.db, userID, providerName)
	if err != nil {
		return nil, &domain.Error{Op: "upsert", Err: err}
	}
	if existing != nil {
		existing.Scopes = datatypes.NewJSONSlice([]string(state.Scopes))
		existing.Status = domain.StatusPending
		if grant.ProviderUserID != "" {
			id := grant.ProviderUserID
			existing.ProviderUserID = &id
		}
		for key, value := range metadata {
			if existing.Metadata == nil {
				existing.Metadata = datatypes.JSONMap{}
			}
			existing.Metadata[key] = value
		}
		existing.UpdatedAt = now
		if err := o.repo.Update(ctx, o.db, existing); err != nil {
			return nil, &domain.Error{Op: "upsert", IntegrationID: existing.ID, Err: err}
		}
		return existing, nil
	}

	integration := &domain.Integration{
		ID:        o.genID.Generate(),
		UserID:    userID,
		Provider:  providerName,
		Scopes:    datatypes.NewJSONSlice([]string(state.Scopes)),
		Status:    domain.StatusPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if grant.ProviderUserID != "" {
		id := grant.ProviderUserID
		integration.ProviderUserID = &id
	}
	if err := o.repo.Insert(ctx, o.db, integration); err != nil {
		return nil, &domain.Error{Op: "upsert", Err: err}
	}
	return integration, nil
}

func (o *Orchestrator) activate(ctx context.Context, integration *domain.Integration, grant *provider.TokenGrant) error {
	now := o.clock.Now()
	integration.Status = domain.StatusActive
	integration.LastSyncAt = &now
	integration.UpdatedAt = now
	if grant.ProviderUserID != "" && integration.ProviderUserID == nil {
		id := grant.ProviderUserID
		integration.ProviderUserID = &id
	}
	if err := o.repo.Update(ctx, o.db, integration); err != nil {
		return &domain.Error{Op: "activate", IntegrationID: integration.ID, Err: err}
	}
	return nil
}

// recordConsents writes one granted row per scope. Consent is an audit
// artifact alongside the tokens; a write failure is logged, not fatal to the
// already-activated integration.
func (o *Orchestrator) recordConsents(ctx context.Context, integration *domain.Integration, scopes []string) {
	ip := reqmeta.IPAddressFromContext(ctx)
	ua := reqmeta.UserAgentFromContext(ctx)
	for _, scope := range scopes {
		_, err := o.consents.Record(ctx, consentdomain.RecordRequest{
			UserID:        integration.UserID,
			IntegrationID: integration.ID,
			ScopeName:     scope,
			Status:        consentdomain.StatusGranted,
			IPAddress:     ip,
			UserAgent:     ua,
		})
		if err != nil {
			o.log.Warn("consent record failed",
				zap.String("scope", scope),
				zap.String("integration_id", integration.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// markExpired flips an integration whose refresh was rejected by the
// provider; the user must reconnect. Best-effort, the refresh error is what
// propagates.
func (o *Orchestrator) markExpired(ctx context.Context, integration *domain.Integration, cause error) {
	var provErr *provider.Error
	if !errors.As(cause, &provErr) {
		return
	}
	integration.Status = domain.StatusExpired
	integration.UpdatedAt = o.clock.Now()
	if err := o.repo.Update(ctx, o.db, integration); err != nil {
		o.log.Warn("failed to mark integration expired",
			zap.String("integration_id", integration.ID.String()),
			zap.Error(err),
		)
	}
}

// revokeAtProvider best-effort revokes the live access token upstream before
// local deletion. Providers without a revoke endpoint report success.
func (o *Orchestrator) revokeAtProvider(ctx context.Context, integration *domain.Integration) {
	adapter, err := o.registry.Resolve(integration.Provider)
	if err != nil {
		return
	}
	access, err := o.tokens.GetValid(ctx, integration.ID, tokendomain.TypeAccess)
	if err != nil || access == nil {
		return
	}
	plaintext, err := o.tokens.Decrypt(access)
	if err != nil {
		return
	}
	if !adapter.RevokeToken(ctx, plaintext, string(tokendomain.TypeAccess)) {
		o.log.Warn("provider-side token revocation failed",
			zap.String("provider", integration.Provider),
			zap.String("integration_id", integration.ID.String()),
		)
	}
}

func (o *Orchestrator) syncOne(ctx context.Context, integration *domain.Integration) error {
	adapter, err := o.registry.Resolve(integration.Provider)
	if err != nil {
		return err
	}

	access, err := o.tokens.GetValid(ctx, integration.ID, tokendomain.TypeAccess)
	if err != nil {
		return err
	}
	if access == nil {
		// Access token lapsed; fall through to refresh before giving up.
		result, err := o.tokens.Refresh(ctx, integration.ID, adapter)
		if err != nil {
			return err
		}
		if result.Outcome != tokendomain.OutcomeRefreshed {
			return errors.New("no valid access token")
		}
		access = result.Token
	}

	plaintext, err := o.tokens.Decrypt(access)
	if err != nil {
		return err
	}

	info, err := adapter.UserInfo(ctx, plaintext)
	if err != nil {
		return err
	}

	now := o.clock.Now()
	if integration.Metadata == nil {
		integration.Metadata = datatypes.JSONMap{}
	}
	integration.Metadata["profile"] = info
	integration.LastSyncAt = &now
	integration.UpdatedAt = now
	return o.repo.Update(ctx, o.db, integration)
}

func requiredScopes(adapter provider.Adapter) []string {
	var scopes []string
	for _, info := range adapter.AvailableScopes() {
		if info.Required {
			scopes = append(scopes, info.Name)
		}
	}
	return scopes
}

func grantMetadata(grant *provider.TokenGrant) datatypes.JSONMap {
	metadata := datatypes.JSONMap{}
	if grant.ProviderEmail != "" {
		metadata["provider_email"] = grant.ProviderEmail
	}
	if grant.ProviderName != "" {
		metadata["provider_name"] = grant.ProviderName
	}
	return metadata
}
