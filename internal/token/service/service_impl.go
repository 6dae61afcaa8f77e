package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/porterhq/porter/internal/clock"
	"github.com/porterhq/porter/internal/provider"
	"github.com/porterhq/porter/internal/refreshlock"
	"github.com/porterhq/porter/internal/token/crypto"
	"github.com/porterhq/porter/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config carries the expiry defaults applied when providers omit lifetimes.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Cipher *crypto.Cipher
	Clock  clock.Clock
	Guard  *refreshlock.Guard
	Config Config
}

type Store struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	cipher *crypto.Cipher
	clock  clock.Clock
	guard  *refreshlock.Guard
	cfg    Config
}

func New(p Params) domain.Store {
	return &Store{
		db:     p.DB,
		log:    p.Log.Named("token.store"),
		genID:  p.GenID,
		repo:   p.Repo,
		cipher: p.Cipher,
		clock:  p.Clock,
		guard:  p.Guard,
		cfg:    p.Config,
	}
}

func (s *Store) Store(ctx context.Context, integrationID snowflake.ID, grant *provider.TokenGrant) ([]*domain.Token, error) {
	if grant == nil || grant.AccessToken == "" {
		return nil, &domain.Error{Op: "store", TokenType: domain.TypeAccess, Err: errors.New("grant has no access token")}
	}

	now := s.clock.Now()

	accessTTL := s.cfg.AccessTokenTTL
	if grant.ExpiresIn != nil {
		accessTTL = time.Duration(*grant.ExpiresIn) * time.Second
	}
	accessExpiry := now.Add(accessTTL)

	access, err := s.encryptToken(integrationID, domain.TypeAccess, grant.AccessToken, &accessExpiry, grant.Scope, now)
	if err != nil {
		return nil, err
	}

	tokens := []*domain.Token{access}
	if grant.RefreshToken != nil && *grant.RefreshToken != "" {
		// Providers rarely state refresh-token lifetime; bound it ourselves.
		refreshExpiry := now.Add(s.cfg.RefreshTokenTTL)
		refresh, err := s.encryptToken(integrationID, domain.TypeRefresh, *grant.RefreshToken, &refreshExpiry, grant.Scope, now)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, refresh)
	}

	for _, token := range tokens {
		if err := s.repo.Insert(ctx, s.db, token); err != nil {
			return nil, &domain.Error{Op: "store", TokenType: token.Type, Err: err}
		}
	}
	return tokens, nil
}

func (s *Store) GetValid(ctx context.Context, integrationID snowflake.ID, tokenType domain.Type) (*domain.Token, error) {
	token, err := s.repo.FindValid(ctx, s.db, integrationID, tokenType, s.clock.Now())
	if err != nil {
		return nil, &domain.Error{Op: "get_valid", TokenType: tokenType, Err: err}
	}
	return token, nil
}

func (s *Store) Decrypt(token *domain.Token) (string, error) {
	if token == nil {
		return "", &domain.Error{Op: "decrypt", Err: errors.New("token is nil")}
	}
	plaintext, err := s.cipher.Decrypt(token.Ciphertext)
	if err != nil {
		return "", &domain.Error{Op: "decrypt", TokenType: token.Type, Err: err}
	}
	return plaintext, nil
}

func (s *Store) Refresh(ctx context.Context, integrationID snowflake.ID, adapter provider.Adapter) (domain.RefreshResult, error) {
	release, err := s.guard.Acquire(ctx, integrationID)
	if errors.Is(err, refreshlock.ErrRefreshInFlight) {
		return domain.RefreshResult{Outcome: domain.OutcomeInFlight}, nil
	}
	if err != nil {
		return domain.RefreshResult{}, &domain.Error{Op: "refresh", TokenType: domain.TypeRefresh, Err: err}
	}
	defer release()

	refreshRow, err := s.GetValid(ctx, integrationID, domain.TypeRefresh)
	if err != nil {
		return domain.RefreshResult{}, err
	}
	if refreshRow == nil {
		return domain.RefreshResult{Outcome: domain.OutcomeNoRefreshToken}, nil
	}

	refreshToken, err := s.Decrypt(refreshRow)
	if err != nil {
		return domain.RefreshResult{}, err
	}

	grant, err := adapter.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		return domain.RefreshResult{}, err
	}

	now := s.clock.Now()
	accessTTL := s.cfg.AccessTokenTTL
	if grant.ExpiresIn != nil {
		accessTTL = time.Duration(*grant.ExpiresIn) * time.Second
	}
	accessExpiry := now.Add(accessTTL)

	access, err := s.encryptToken(integrationID, domain.TypeAccess, grant.AccessToken, &accessExpiry, grant.Scope, now)
	if err != nil {
		return domain.RefreshResult{}, err
	}
	if err := s.repo.Insert(ctx, s.db, access); err != nil {
		return domain.RefreshResult{}, &domain.Error{Op: "refresh", TokenType: domain.TypeAccess, Err: err}
	}

	// Persist a rotated refresh token; most providers return the same one.
	if grant.RefreshToken != nil && *grant.RefreshToken != "" && *grant.RefreshToken != refreshToken {
		refreshExpiry := now.Add(s.cfg.RefreshTokenTTL)
		rotated, err := s.encryptToken(integrationID, domain.TypeRefresh, *grant.RefreshToken, &refreshExpiry, grant.Scope, now)
		if err != nil {
			return domain.RefreshResult{}, err
		}
		if err := s.repo.Insert(ctx, s.db, rotated); err != nil {
			return domain.RefreshResult{}, &domain.Error{Op: "refresh", TokenType: domain.TypeRefresh, Err: err}
		}
	}

	return domain.RefreshResult{Outcome: domain.OutcomeRefreshed, Token: access}, nil
}

func (s *Store) Invalidate(ctx context.Context, integrationID snowflake.ID, tokenType domain.Type) error {
	if err := s.repo.Touch(ctx, s.db, integrationID, tokenType, s.clock.Now()); err != nil {
		return &domain.Error{Op: "invalidate", TokenType: tokenType, Err: err}
	}
	return nil
}

func (s *Store) RevokeAll(ctx context.Context, integrationID snowflake.ID) error {
	if err := s.repo.DeleteByIntegration(ctx, s.db, integrationID); err != nil {
		return &domain.Error{Op: "revoke_all", Err: err}
	}
	return nil
}

func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.DeleteExpired(ctx, s.db, now)
	if err != nil {
		return 0, &domain.Error{Op: "cleanup_expired", Err: err}
	}
	return count, nil
}

func (s *Store) encryptToken(integrationID snowflake.ID, tokenType domain.Type, plaintext string, expiresAt *time.Time, scope string, now time.Time) (*domain.Token, error) {
	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, &domain.Error{Op: "encrypt", TokenType: tokenType, Err: err}
	}
	return &domain.Token{
		ID:            s.genID.Generate(),
		IntegrationID: integrationID,
		Type:          tokenType,
		Ciphertext:    ciphertext,
		ExpiresAt:     expiresAt,
		Scope:         scope,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
