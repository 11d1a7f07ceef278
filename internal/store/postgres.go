package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foxzi/campaignhub/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT NOT NULL,
    region TEXT NOT NULL,
    title TEXT,
    send_time TIMESTAMPTZ,
    payload JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (id, region)
);
CREATE INDEX IF NOT EXISTS idx_campaigns_region_send_time ON campaigns(region, send_time);
`

const postgresUpsert = `
INSERT INTO campaigns (id, region, title, send_time, payload, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id, region) DO UPDATE SET
    title = EXCLUDED.title,
    send_time = EXCLUDED.send_time,
    payload = EXCLUDED.payload,
    updated_at = EXCLUDED.updated_at`

// PostgresStore keeps campaigns in PostgreSQL for multi-instance deployments
type PostgresStore struct {
	pool    *pgxpool.Pool
	maxRows int
	logger  *slog.Logger
	now     func() time.Time
}

// NewPostgres connects and ensures the campaigns table exists
func NewPostgres(ctx context.Context, dsn string, maxRows int, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create campaigns table: %w", err)
	}

	return &PostgresStore{
		pool:    pool,
		maxRows: maxRowsOrDefault(maxRows),
		logger:  logger.With("component", "store", "backend", "postgres"),
		now:     time.Now,
	}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, region string, records []models.CampaignRecord) error {
	now := s.now()
	batch := &pgx.Batch{}
	ids := make([]string, 0, len(records))

	for _, r := range records {
		rec := stamp(r, region, now)
		payload, err := encodeRecord(&rec)
		if err != nil {
			return err
		}
		batch.Queue(postgresUpsert, rec.ID, rec.Region, rec.Title, rec.SendTime, string(payload), rec.UpdatedAt)
		ids = append(ids, rec.ID)
	}
	if batch.Len() == 0 {
		return nil
	}

	// the batch runs as one implicit transaction
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, id := range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert campaign %s: %w", id, err)
		}
	}
	return nil
}

// cachedQuery builds the windowed read; region "" means all regions
func cachedQuery(q Query, since time.Time, limit int) (string, []any) {
	cond := "WHERE send_time >= $1"
	args := []any{since}
	idx := 2

	if q.Region != "" {
		cond += fmt.Sprintf(" AND region = $%d", idx)
		args = append(args, q.Region)
		idx++
	}

	sql := fmt.Sprintf("SELECT id, region, payload FROM campaigns %s ORDER BY send_time DESC LIMIT $%d", cond, idx)
	args = append(args, limit)
	return sql, args
}

func (s *PostgresStore) GetCached(ctx context.Context, q Query) ([]models.CampaignRecord, error) {
	sql, args := cachedQuery(q, windowStart(s.now(), q.WindowDays), s.maxRows)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	records := []models.CampaignRecord{}
	for rows.Next() {
		var id, region string
		var payload []byte
		if err := rows.Scan(&id, &region, &payload); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			s.logger.Warn("skipping malformed cached campaign", "id", id, "region", region, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Clear(ctx context.Context, region string) (int64, error) {
	sql, args := "DELETE FROM campaigns", []any{}
	if region != "" {
		sql += " WHERE region = $1"
		args = append(args, region)
	}

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear campaigns: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RowsByRegion(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT region, COUNT(*)::bigint FROM campaigns GROUP BY region")
	if err != nil {
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var region string
		var n int64
		if err := rows.Scan(&region, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[region] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (models.CacheStats, error) {
	counts, err := s.RowsByRegion(ctx)
	if err != nil {
		return models.CacheStats{}, err
	}
	return statsFromCounts(counts), nil
}

// Ready pings the pool; GET /health reports it
func (s *PostgresStore) Ready(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
