package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/campaignhub/internal/aggregate"
	"github.com/foxzi/campaignhub/internal/api"
	"github.com/foxzi/campaignhub/internal/auth"
	"github.com/foxzi/campaignhub/internal/config"
	"github.com/foxzi/campaignhub/internal/db"
	"github.com/foxzi/campaignhub/internal/mailchimp"
	"github.com/foxzi/campaignhub/internal/metrics"
	"github.com/foxzi/campaignhub/internal/refresh"
	"github.com/foxzi/campaignhub/internal/repository"
	"github.com/foxzi/campaignhub/internal/store"
	chtls "github.com/foxzi/campaignhub/internal/tls"
	"github.com/foxzi/campaignhub/internal/worker"
)

// Core is everything needed to read and refresh campaign data. The CLI
// uses it directly; App adds the HTTP surface around it.
type Core struct {
	DB        *db.DB
	Store     store.Store
	Mailchimp *mailchimp.Manager
	Service   *refresh.Service
}

// OpenCore opens the database, migrates it, opens the cache and builds the
// refresh service
func OpenCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Cache, database.DB, logger)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	mgr := mailchimp.NewManager(cfg.Mailchimp.Regions,
		mailchimp.OptionsFromConfig(cfg.Mailchimp, logger.With("component", "mailchimp")))

	agg := aggregate.New(aggregate.Config{
		BatchSize:   cfg.Refresh.BatchSize,
		Concurrency: cfg.Refresh.Concurrency,
		BatchDelay:  cfg.Refresh.BatchDelay,
	}, logger)

	svc := refresh.New(refresh.NewManagerSource(mgr), st, agg, refresh.Config{
		DefaultDays:   cfg.Refresh.DefaultDays,
		MaxAge:        cfg.Refresh.MaxAge,
		CampaignLimit: cfg.Mailchimp.CampaignLimit,
	}, logger)

	return &Core{DB: database, Store: st, Mailchimp: mgr, Service: svc}, nil
}

// Close stops background syncs and closes storage
func (c *Core) Close() error {
	c.Service.Close()
	if err := c.Store.Close(); err != nil {
		c.DB.Close()
		return fmt.Errorf("failed to close cache: %w", err)
	}
	return c.DB.Close()
}

// App is the main application
type App struct {
	config        *config.Config
	core          *Core
	apiServer     *api.Server
	acmeServer    *http.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	worker        *worker.Worker
	logger        *slog.Logger
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	core, err := OpenCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if len(cfg.Mailchimp.Regions) == 0 {
		logger.Warn("no mailchimp regions configured")
	}

	a := &App{config: cfg, core: core, logger: logger}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.collector = metrics.NewCollector(m, core.Store, 0)
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr)
	}

	oidcProvider, err := auth.NewOIDCProvider(ctx, cfg.Auth.OIDC)
	if err != nil {
		core.Close()
		return nil, fmt.Errorf("failed to initialize OIDC: %w", err)
	}
	if oidcProvider != nil {
		logger.Info("OIDC enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	tlsProvider, err := chtls.New(cfg.Server.TLS)
	if err != nil {
		core.Close()
		return nil, err
	}
	opts := api.Options{
		Config:  cfg,
		Service: core.Service,
		DB:      core.DB.DB,
		OIDC:    oidcProvider,
		Version: version,
		Logger:  logger,
	}
	if tlsProvider != nil {
		opts.TLS = tlsProvider.TLSConfig()
		if tlsProvider.ACME() {
			a.acmeServer = &http.Server{
				Addr:              cfg.Server.TLS.ACME.HTTPAddr,
				Handler:           tlsProvider.ChallengeHandler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info("ACME (Let's Encrypt) enabled", "domains", cfg.Server.TLS.ACME.Domains)
		}
	}
	a.apiServer = api.NewServer(opts)

	cleaners := map[string]worker.Cleaner{
		"sessions":    repository.NewSessionRepository(core.DB.DB),
		"share_links": repository.NewShareLinkRepository(core.DB.DB),
	}
	var syncer worker.Syncer
	if cfg.Refresh.SyncInterval > 0 {
		syncer = core.Service
	}
	a.worker = worker.New(syncer, cleaners, logger, worker.Config{
		Interval: workerInterval(cfg.Refresh.SyncInterval),
		Days:     cfg.Refresh.DefaultDays,
	})

	return a, nil
}

// workerInterval runs cleanup hourly when scheduled sync is off
func workerInterval(syncInterval time.Duration) time.Duration {
	if syncInterval > 0 {
		return syncInterval
	}
	return time.Hour
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting campaignhub",
		"api_addr", a.config.Server.ListenAddr,
		"regions", a.core.Mailchimp.Regions(),
		"cache_backend", a.config.Cache.Backend,
		"sync_interval", a.config.Refresh.SyncInterval,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.worker.Start()
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 3)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	if a.acmeServer != nil {
		go func() {
			a.logger.Info("starting ACME HTTP challenge server", "addr", a.acmeServer.Addr)
			if err := a.acmeServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("acme server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		if !isServerClosed(err) {
			a.logger.Error("server error", "error", err)
			runErr = err
		}
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop scheduled work first
	a.worker.Stop()
	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme server shutdown error", "error", err)
		}
	}

	if err := a.core.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

func isServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLogLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
