package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/porterhq/porter/internal/clock"
	integrationdomain "github.com/porterhq/porter/internal/integration/domain"
	tokendomain "github.com/porterhq/porter/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Orchestrator integrationdomain.Orchestrator
	Integrations integrationdomain.Repository
	Tokens       tokendomain.Store
	Config       Config `optional:"true"`
}

// Scheduler runs the periodic maintenance passes: expired-data cleanup and
// proactive refresh of integrations whose access token is about to lapse.
type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	orchestrator integrationdomain.Orchestrator
	integrations integrationdomain.Repository
	tokens       tokendomain.Store
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Orchestrator == nil || p.Integrations == nil || p.Tokens == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler"),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		orchestrator: p.Orchestrator,
		integrations: p.Integrations,
		tokens:       p.Tokens,
	}, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	var err error
	err = errors.Join(err, s.CleanupJob(ctx))
	err = errors.Join(err, s.ProactiveRefreshJob(ctx))
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("maintenance run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) CleanupJob(ctx context.Context) error {
	report, err := s.orchestrator.CleanupExpiredData(ctx)
	if err != nil {
		return err
	}
	if report.ExpiredTokens > 0 || report.ExpiredStates > 0 || report.OldAuditLogs > 0 {
		s.log.Info("cleanup pass",
			zap.Int64("expired_tokens", report.ExpiredTokens),
			zap.Int64("expired_states", report.ExpiredStates),
			zap.Int64("old_audit_logs", report.OldAuditLogs),
		)
	}
	return nil
}

// ProactiveRefreshJob refreshes active integrations whose access token is
// missing or expires inside the refresh window, so callers rarely hit a
// lapsed token. Per-integration failures are logged and do not stop the
// sweep.
func (s *Scheduler) ProactiveRefreshJob(ctx context.Context) error {
	active, err := s.integrations.List(ctx, s.db, integrationdomain.ListQuery{
		Statuses: []integrationdomain.Status{integrationdomain.StatusActive},
	})
	if err != nil {
		return err
	}

	deadline := s.clock.Now().Add(s.cfg.RefreshWindow)
	var jobErr error
	for _, integration := range active {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		access, err := s.tokens.GetValid(ctx, integration.ID, tokendomain.TypeAccess)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if access != nil && (access.ExpiresAt == nil || access.ExpiresAt.After(deadline)) {
			continue
		}

		if _, err := s.orchestrator.RefreshTokens(ctx, integration.ID); err != nil {
			s.log.Warn("proactive refresh failed",
				zap.String("integration_id", integration.ID.String()),
				zap.String("provider", integration.Provider),
				zap.Error(err),
			)
			jobErr = errors.Join(jobErr, err)
		}
	}
	return jobErr
}
