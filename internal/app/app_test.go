package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/campaignhub/internal/config"
	"github.com/foxzi/campaignhub/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:   config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "app.db")},
		Cache: config.CacheConfig{
			Backend: backend,
			Path:    filepath.Join(dir, "cache.bolt"),
			MaxRows: 100,
		},
		Auth: config.AuthConfig{
			LocalEnabled:  true,
			SessionSecret: strings.Repeat("k", 32),
			SessionTTL:    time.Hour,
			ShareLinkTTL:  time.Hour,
		},
		Mailchimp: config.MailchimpConfig{
			Regions: []config.RegionConfig{{Name: "US", APIKey: "key-us1", ServerPrefix: "us1"}},
		},
		Refresh: config.RefreshConfig{DefaultDays: 30, BatchSize: 10, Concurrency: 5},
	}
}

func TestOpenCore(t *testing.T) {
	for _, backend := range []string{config.CacheBackendSQLite, config.CacheBackendBolt} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			ctx := context.Background()

			core, err := OpenCore(ctx, cfg, testLogger())
			if err != nil {
				t.Fatalf("OpenCore() error = %v", err)
			}

			rec := models.CampaignRecord{ID: "c1", Title: "Hello", SendTime: time.Now().Add(-time.Hour)}
			if err := core.Store.Upsert(ctx, "US", []models.CampaignRecord{rec}); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			res, err := core.Service.ReadCache(ctx, 7, "us")
			if err != nil {
				t.Fatalf("ReadCache() error = %v", err)
			}
			if res.Count() != 1 || res.Region != "US" {
				t.Errorf("ReadCache() = %+v", res)
			}

			if got := core.Mailchimp.Regions(); len(got) != 1 || got[0] != "US" {
				t.Errorf("Regions() = %v", got)
			}

			if err := core.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}

			// data survives a reopen
			core, err = OpenCore(ctx, cfg, testLogger())
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			defer core.Close()
			stats, err := core.Service.CacheStats(ctx)
			if err != nil {
				t.Fatalf("CacheStats() error = %v", err)
			}
			if stats.Total != 1 {
				t.Errorf("Total after reopen = %d, want 1", stats.Total)
			}
		})
	}
}

func TestOpenCoreUnknownBackend(t *testing.T) {
	cfg := testConfig(t, "redis")
	if _, err := OpenCore(context.Background(), cfg, testLogger()); err == nil {
		t.Fatal("OpenCore() with unknown backend should fail")
	}
}

func TestAppRunShutdown(t *testing.T) {
	cfg := testConfig(t, config.CacheBackendSQLite)

	a, err := New(context.Background(), cfg, "test", testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// the handler works before the listener is up
	rec := &recorder{header: http.Header{}}
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	a.apiServer.Handler().ServeHTTP(rec, req)
	if rec.status != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

type recorder struct {
	header http.Header
	status int
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return len(b), nil
}

func (r *recorder) WriteHeader(code int) { r.status = code }

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWorkerInterval(t *testing.T) {
	if got := workerInterval(0); got != time.Hour {
		t.Errorf("workerInterval(0) = %v, want 1h", got)
	}
	if got := workerInterval(15 * time.Minute); got != 15*time.Minute {
		t.Errorf("workerInterval(15m) = %v", got)
	}
}
