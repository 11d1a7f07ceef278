package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the campaignhub configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Mailchimp MailchimpConfig `yaml:"mailchimp"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr  string          `yaml:"listen_addr"`
	PublicURL   string          `yaml:"public_url"`
	TLS         TLSConfig       `yaml:"tls"`
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

type TLSConfig struct {
	Enabled  bool       `yaml:"enabled"`
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig obtains certificates from Let's Encrypt instead of cert_file/key_file
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	// HTTPAddr serves HTTP-01 challenges and redirects everything else to HTTPS
	HTTPAddr string `yaml:"http_addr"`
}

// RateLimitConfig limits API requests per client IP. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Cache backends
const (
	CacheBackendSQLite   = "sqlite"
	CacheBackendBolt     = "bolt"
	CacheBackendPostgres = "postgres"
)

// CacheConfig selects where campaign records are cached.
// The sqlite backend shares the database file from DatabaseConfig.
type CacheConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
	MaxRows int    `yaml:"max_rows"`
}

type AuthConfig struct {
	LocalEnabled  bool          `yaml:"local_enabled"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	ShareLinkTTL  time.Duration `yaml:"share_link_ttl"`
	OIDC          OIDCConfig    `yaml:"oidc"`
}

type OIDCConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Provider      string   `yaml:"provider"`
	ClientID      string   `yaml:"client_id"`
	ClientSecret  string   `yaml:"client_secret"`
	IssuerURL     string   `yaml:"issuer_url"`
	RedirectURL   string   `yaml:"redirect_url"`
	Scopes        []string `yaml:"scopes"`
	AllowedGroups []string `yaml:"allowed_groups"`
}

type MailchimpConfig struct {
	Regions []RegionConfig `yaml:"regions"`
	// IgnoreEnv disables region discovery from MAILCHIMP_* variables.
	IgnoreEnv bool `yaml:"ignore_env"`

	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	PageSize          int           `yaml:"page_size"`
	CampaignLimit     int           `yaml:"campaign_limit"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

type RegionConfig struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	ServerPrefix string `yaml:"server_prefix"`
}

// BreakerConfig controls the per-region circuit breaker
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

type RefreshConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
	BatchDelay  time.Duration `yaml:"batch_delay"`
	DefaultDays int           `yaml:"default_days"`
	// MaxAge forces a refresh when the newest cached row is older. Zero disables it.
	MaxAge time.Duration `yaml:"max_age"`
	// SyncInterval runs a background sync of all regions. Zero disables it.
	SyncInterval time.Duration `yaml:"sync_interval"`
}

type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"`
	Path       string   `yaml:"path"`
	AllowedIPs []string `yaml:"allowed_ips"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the config file, applies defaults, resolves regions and validates
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	cfg.Mailchimp.Regions = ResolveRegions(cfg.Mailchimp, os.Getenv)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8000"
	}
	if cfg.Server.RateLimit.Window == 0 {
		cfg.Server.RateLimit.Window = time.Minute
	}
	if cfg.Server.TLS.ACME.CacheDir == "" {
		cfg.Server.TLS.ACME.CacheDir = "/var/lib/campaignhub/certs"
	}
	if cfg.Server.TLS.ACME.HTTPAddr == "" {
		cfg.Server.TLS.ACME.HTTPAddr = ":80"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/campaignhub/app.db"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheBackendSQLite
	}
	if cfg.Cache.Backend == CacheBackendBolt && cfg.Cache.Path == "" {
		cfg.Cache.Path = "/var/lib/campaignhub/cache.bolt"
	}
	if cfg.Cache.MaxRows == 0 {
		cfg.Cache.MaxRows = 1000
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Auth.ShareLinkTTL == 0 {
		cfg.Auth.ShareLinkTTL = 7 * 24 * time.Hour
	}
	if len(cfg.Auth.OIDC.Scopes) == 0 {
		cfg.Auth.OIDC.Scopes = []string{"openid", "profile", "email"}
	}

	mc := &cfg.Mailchimp
	if mc.Timeout == 0 {
		mc.Timeout = 30 * time.Second
	}
	if mc.MaxRetries == 0 {
		mc.MaxRetries = 3
	}
	if mc.RetryBackoff == 0 {
		mc.RetryBackoff = time.Second
	}
	if mc.PageSize == 0 || mc.PageSize > 1000 {
		mc.PageSize = 1000
	}
	if mc.CampaignLimit == 0 {
		mc.CampaignLimit = 1000
	}
	if mc.RequestsPerSecond == 0 {
		mc.RequestsPerSecond = 10
	}
	if mc.Burst == 0 {
		mc.Burst = 10
	}
	if mc.Breaker.FailureThreshold == 0 {
		mc.Breaker.FailureThreshold = 5
	}
	if mc.Breaker.OpenTimeout == 0 {
		mc.Breaker.OpenTimeout = 30 * time.Second
	}

	if cfg.Refresh.BatchSize == 0 {
		cfg.Refresh.BatchSize = 10
	}
	if cfg.Refresh.Concurrency == 0 {
		cfg.Refresh.Concurrency = 5
	}
	if cfg.Refresh.BatchDelay == 0 {
		cfg.Refresh.BatchDelay = 500 * time.Millisecond
	}
	if cfg.Refresh.DefaultDays == 0 {
		cfg.Refresh.DefaultDays = 30
	}

	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Auth.SessionSecret == "" {
		return fmt.Errorf("auth.session_secret is required")
	}
	if len(cfg.Auth.SessionSecret) < 32 {
		return fmt.Errorf("auth.session_secret must be at least 32 characters")
	}
	if !cfg.Auth.LocalEnabled && !cfg.Auth.OIDC.Enabled {
		return fmt.Errorf("at least one auth method must be enabled (local or OIDC)")
	}
	if cfg.Auth.OIDC.Enabled {
		if cfg.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("auth.oidc.client_secret is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when OIDC is enabled")
		}
	}
	if tls := cfg.Server.TLS; tls.Enabled {
		if tls.ACME.Enabled {
			if len(tls.ACME.Domains) == 0 {
				return fmt.Errorf("server.tls.acme.domains is required when ACME is enabled")
			}
		} else if tls.CertFile == "" || tls.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
	}

	switch cfg.Cache.Backend {
	case CacheBackendSQLite, CacheBackendBolt:
	case CacheBackendPostgres:
		if cfg.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", cfg.Cache.Backend)
	}

	if cfg.Refresh.BatchSize < 1 {
		return fmt.Errorf("refresh.batch_size must be positive")
	}
	if cfg.Refresh.Concurrency < 1 {
		return fmt.Errorf("refresh.concurrency must be positive")
	}
	if cfg.Refresh.DefaultDays < 1 {
		return fmt.Errorf("refresh.default_days must be positive")
	}
	if cfg.Mailchimp.MaxRetries < 0 {
		return fmt.Errorf("mailchimp.max_retries must not be negative")
	}

	seen := make(map[string]bool)
	for _, r := range cfg.Mailchimp.Regions {
		if seen[r.Name] {
			return fmt.Errorf("duplicate mailchimp region %q", r.Name)
		}
		seen[r.Name] = true
	}

	return nil
}

// RegionNames returns the configured region names in order
func (c *Config) RegionNames() []string {
	names := make([]string, 0, len(c.Mailchimp.Regions))
	for _, r := range c.Mailchimp.Regions {
		names = append(names, r.Name)
	}
	return names
}

func normalizeRegion(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
