package api

import (
	"context"
	"crypto/tls"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/foxzi/campaignhub/internal/auth"
	"github.com/foxzi/campaignhub/internal/config"
	"github.com/foxzi/campaignhub/internal/metrics"
	"github.com/foxzi/campaignhub/internal/models"
	"github.com/foxzi/campaignhub/internal/refresh"
	"github.com/foxzi/campaignhub/internal/repository"
)

// DashboardService is the refresh orchestrator surface used by handlers
type DashboardService interface {
	GetDashboard(ctx context.Context, days int, region string, forceRefresh bool) (*refresh.Result, error)
	ReadCache(ctx context.Context, days int, region string) (*refresh.Result, error)
	SyncAllInBackground(days int) bool
	Regions() []string
	Audiences(ctx context.Context, region string) (map[string][]models.AudienceSummary, error)
	GrowthHistory(ctx context.Context, region, listID string, months int) ([]models.MonthlyGrowth, error)
	ClearCache(ctx context.Context, region string) (int64, error)
	CacheStats(ctx context.Context) (models.CacheStats, error)
	TestCredentials(ctx context.Context) []models.RegionStatus
	Ready(ctx context.Context) error
}

// OIDC is the single sign-on flow; nil disables it
type OIDC interface {
	AuthCodeURL() (string, string, error)
	Exchange(ctx context.Context, state, code string) (*auth.UserInfo, error)
}

// Options wires a Server
type Options struct {
	Config  *config.Config
	Service DashboardService
	DB      *sql.DB
	OIDC    OIDC
	// TLS serves HTTPS when set
	TLS     *tls.Config
	Version string
	Logger  *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.Config
	svc        DashboardService
	oidc       OIDC
	version    string
	logger     *slog.Logger
	startTime  time.Time

	users    *repository.UserRepository
	sessions *repository.SessionRepository
	shares   *repository.ShareLinkRepository
	activity *repository.ActivityRepository
	settings *repository.SettingsRepository
	tokens   *auth.ShareTokens
	validate *validator.Validate
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       opts.Config,
		svc:       opts.Service,
		version:   opts.Version,
		logger:    opts.Logger.With("component", "api"),
		startTime: time.Now(),
		users:     repository.NewUserRepository(opts.DB),
		sessions:  repository.NewSessionRepository(opts.DB),
		shares:    repository.NewShareLinkRepository(opts.DB),
		activity:  repository.NewActivityRepository(opts.DB),
		settings:  repository.NewSettingsRepository(opts.DB),
		tokens:    auth.NewShareTokens(opts.Config.Auth.SessionSecret),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	// a typed nil provider must not look enabled
	if p, ok := opts.OIDC.(*auth.OIDCProvider); !ok || p != nil {
		s.oidc = opts.OIDC
	}

	s.setupRoutes()
	// WriteTimeout leaves room for a forced refresh of every region
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		TLSConfig:         opts.TLS,
	}
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware(s.svc.Regions()))

	if len(s.cfg.Server.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if rl := s.cfg.Server.RateLimit; rl.Requests > 0 {
		s.router.Use(httprate.Limit(rl.Requests, rl.Window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				sendError(w, http.StatusTooManyRequests, codeRateLimited, "Too many requests")
			}),
		))
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, codeNotFound, "Not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusMethodNotAllowed, codeBadRequest, "Method not allowed")
	})

	// Public
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/api/auth/login", s.handleLogin)
	s.router.Post("/api/auth/logout", s.handleLogout)
	s.router.Get("/auth/oidc/login", s.handleOIDCLogin)
	s.router.Get("/auth/callback", s.handleOIDCCallback)
	s.router.Get("/api/shared/{token}", s.handleShared)

	// Authenticated
	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/auth/me", s.handleMe)

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/regions", s.handleRegions)
		r.Post("/sync", s.handleSync)
		r.Get("/audiences", s.handleAudiences)
		r.Get("/audiences/{listId}/growth", s.handleGrowth)

		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/clear", s.handleCacheClear)
		r.Get("/test-credentials", s.handleTestCredentials)

		r.Post("/share", s.handleShareCreate)
		r.Get("/share", s.handleShareList)
		r.Delete("/share/{id}", s.handleShareRevoke)

		r.Get("/activity", s.handleActivity)
		r.Get("/settings/prompt", s.handlePromptGet)
		r.Put("/settings/prompt", s.handlePromptPut)
		r.Post("/insights/prompt", s.handleInsightsPrompt)
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server, with TLS when configured
func (s *Server) ListenAndServe() error {
	tlsEnabled := s.httpServer.TLSConfig != nil
	s.logger.Info("starting HTTP API server", "addr", s.cfg.Server.ListenAddr, "tls", tlsEnabled)
	if tlsEnabled {
		// certificates come from TLSConfig
		return s.httpServer.ListenAndServeTLS("", "")
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	return s.httpServer.Shutdown(ctx)
}
