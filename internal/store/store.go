// Package store caches campaign records per region. Rows are keyed by
// (campaign id, region); a later upsert of the same key replaces the row.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/foxzi/campaignhub/internal/config"
	"github.com/foxzi/campaignhub/internal/models"
)

// DefaultMaxRows caps a single GetCached read
const DefaultMaxRows = 1000

// sendTimeLayout is fixed width so lexical order matches time order
const sendTimeLayout = "2006-01-02T15:04:05Z"

// Query selects cached rows. An empty Region means all regions.
type Query struct {
	WindowDays int
	Region     string
}

// Store is a durable regional campaign cache
type Store interface {
	// Upsert writes records under region, overwriting existing keys.
	// Whether a failed batch leaves part of it written depends on the backend.
	Upsert(ctx context.Context, region string, records []models.CampaignRecord) error
	// GetCached returns rows sent within the window, newest first
	GetCached(ctx context.Context, q Query) ([]models.CampaignRecord, error)
	// Clear deletes rows for region, or everything when region is empty
	Clear(ctx context.Context, region string) (int64, error)
	Stats(ctx context.Context) (models.CacheStats, error)
	RowsByRegion(ctx context.Context) (map[string]int64, error)
	Close() error
}

// Checker is implemented by backends with a remote or shared connection
type Checker interface {
	Ready(ctx context.Context) error
}

// Ready checks the backend connection. Backends without one are always ready.
func Ready(ctx context.Context, st Store) error {
	if c, ok := st.(Checker); ok {
		return c.Ready(ctx)
	}
	return nil
}

// Open builds the backend selected in cfg. The sqlite backend shares db.
func Open(ctx context.Context, cfg config.CacheConfig, db *sql.DB, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", config.CacheBackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite cache requires a database handle")
		}
		return NewSQLite(db, cfg.MaxRows, logger), nil
	case config.CacheBackendBolt:
		return NewBolt(cfg.Path, cfg.MaxRows, logger)
	case config.CacheBackendPostgres:
		return NewPostgres(ctx, cfg.DSN, cfg.MaxRows, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func formatSendTime(t time.Time) string {
	return t.UTC().Format(sendTimeLayout)
}

func windowStart(now time.Time, days int) time.Time {
	return now.UTC().AddDate(0, 0, -days)
}

func encodeRecord(rec *models.CampaignRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode campaign %s: %w", rec.ID, err)
	}
	return data, nil
}

func decodeRecord(data []byte) (models.CampaignRecord, error) {
	var rec models.CampaignRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// stamp prepares a record for writing under region
func stamp(rec models.CampaignRecord, region string, now time.Time) models.CampaignRecord {
	rec.Region = region
	rec.SendTime = rec.SendTime.UTC()
	rec.UpdatedAt = now.UTC()
	return rec
}

func statsFromCounts(counts map[string]int64) models.CacheStats {
	stats := models.CacheStats{ByRegion: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats
}

func maxRowsOrDefault(n int) int {
	if n <= 0 {
		return DefaultMaxRows
	}
	return n
}
