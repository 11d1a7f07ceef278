package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/campaignhub/internal/models"
)

// SQLiteStore keeps campaigns in the application database.
// The campaigns table is created by db.Migrate.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	logger  *slog.Logger
	now     func() time.Time
}

func NewSQLite(db *sql.DB, maxRows int, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:      db,
		maxRows: maxRowsOrDefault(maxRows),
		logger:  logger.With("component", "store", "backend", "sqlite"),
		now:     time.Now,
	}
}

func (s *SQLiteStore) Upsert(ctx context.Context, region string, records []models.CampaignRecord) error {
	now := s.now()
	for _, r := range records {
		rec := stamp(r, region, now)
		payload, err := encodeRecord(&rec)
		if err != nil {
			return err
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO campaigns (id, region, title, send_time, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id, region) DO UPDATE SET
				title = excluded.title,
				send_time = excluded.send_time,
				payload = excluded.payload,
				updated_at = excluded.updated_at
		`, rec.ID, rec.Region, rec.Title, formatSendTime(rec.SendTime), string(payload), rec.UpdatedAt.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to upsert campaign %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetCached(ctx context.Context, q Query) ([]models.CampaignRecord, error) {
	query := "SELECT id, region, payload FROM campaigns WHERE send_time >= ?"
	args := []any{formatSendTime(windowStart(s.now(), q.WindowDays))}

	if q.Region != "" {
		query += " AND region = ?"
		args = append(args, q.Region)
	}
	query += " ORDER BY send_time DESC LIMIT ?"
	args = append(args, s.maxRows)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	records := []models.CampaignRecord{}
	for rows.Next() {
		var id, region, payload string
		if err := rows.Scan(&id, &region, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		rec, err := decodeRecord([]byte(payload))
		if err != nil {
			s.logger.Warn("skipping malformed cached campaign", "id", id, "region", region, "error", err)
			continue
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context, region string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if region == "" {
		result, err = s.db.ExecContext(ctx, "DELETE FROM campaigns")
	} else {
		result, err = s.db.ExecContext(ctx, "DELETE FROM campaigns WHERE region = ?", region)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear campaigns: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) RowsByRegion(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT region, COUNT(*) FROM campaigns GROUP BY region")
	if err != nil {
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var region string
		var n int64
		if err := rows.Scan(&region, &n); err != nil {
			return nil, err
		}
		counts[region] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (models.CacheStats, error) {
	counts, err := s.RowsByRegion(ctx)
	if err != nil {
		return models.CacheStats{}, err
	}
	return statsFromCounts(counts), nil
}

// Close is a no-op; the database handle belongs to the caller
// Ready pings the application database
func (s *SQLiteStore) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return nil
}
