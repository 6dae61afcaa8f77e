package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/porterhq/porter/internal/config"
	consentdomain "github.com/porterhq/porter/internal/consent/domain"
	integrationdomain "github.com/porterhq/porter/internal/integration/domain"
	"github.com/porterhq/porter/internal/observability"
	obsmiddleware "github.com/porterhq/porter/internal/observability/logger"
	obsmetrics "github.com/porterhq/porter/internal/observability/metrics"
	"github.com/porterhq/porter/internal/provider"
	secdomain "github.com/porterhq/porter/internal/security/domain"
	tokendomain "github.com/porterhq/porter/internal/token/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	orchestrator integrationdomain.Orchestrator
	registry     *provider.Registry
	tokens       tokendomain.Store
	consents     consentdomain.Ledger
	guard        secdomain.Guard
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	Orchestrator integrationdomain.Orchestrator
	Registry     *provider.Registry
	Tokens       tokendomain.Store
	Consents     consentdomain.Ledger
	Guard        secdomain.Guard
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		orchestrator: p.Orchestrator,
		registry:     p.Registry,
		tokens:       p.Tokens,
		consents:     p.Consents,
		guard:        p.Guard,
	}

	svc.registerOAuthRoutes()
	svc.registerIntegrationRoutes()
	svc.registerProviderRoutes()
	svc.registerConsentRoutes()
	svc.registerAuditRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerOAuthRoutes() {
	oauth := s.engine.Group("/v1/oauth")

	oauth.POST("/:provider/initiate", s.UserRequired(), s.InitiateOAuth)
	oauth.GET("/callback", s.OAuthCallback)
}

func (s *Server) registerIntegrationRoutes() {
	integrations := s.engine.Group("/v1/integrations", s.UserRequired())

	integrations.GET("", s.ListIntegrations)
	integrations.POST("/sync", s.SyncIntegrations)
	integrations.POST("/:id/refresh", s.RefreshIntegration)
	integrations.POST("/:id/deactivate", s.DeactivateIntegration)
	integrations.DELETE("/:id", s.RevokeIntegration)
}

func (s *Server) registerProviderRoutes() {
	providers := s.engine.Group("/v1/providers")

	providers.GET("", s.ListProviders)
	providers.GET("/:provider/scopes", s.ListProviderScopes)
}

func (s *Server) registerConsentRoutes() {
	consents := s.engine.Group("/v1/consents", s.UserRequired())

	consents.GET("", s.ListConsents)
	consents.GET("/summary", s.ConsentSummary)
	consents.POST("/:id/revoke", s.RevokeConsent)
}

func (s *Server) registerAuditRoutes() {
	s.engine.GET("/v1/audit-logs", s.UserRequired(), s.ListAuditLogs)
}
