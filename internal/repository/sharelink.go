package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/campaignhub/internal/models"
)

type ShareLinkRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewShareLinkRepository(db *sql.DB) *ShareLinkRepository {
	return &ShareLinkRepository{db: db, now: time.Now}
}

// Create stores a share link for region/days valid for ttl
func (r *ShareLinkRepository) Create(region string, days int, createdBy string, ttl time.Duration) (*models.ShareLink, error) {
	now := r.now().UTC().Truncate(time.Second)
	link := &models.ShareLink{
		ID:        uuid.New().String(),
		Region:    region,
		Days:      days,
		CreatedBy: createdBy,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	var creator any
	if createdBy != "" {
		creator = createdBy
	}

	_, err := r.db.Exec(`
		INSERT INTO share_links (id, region, days, created_by, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		link.ID, link.Region, link.Days, creator, link.ExpiresAt, link.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create share link: %w", err)
	}
	return link, nil
}

const shareLinkColumns = `id, region, days, COALESCE(created_by, '') as created_by, expires_at, revoked, created_at`

// GetByID returns nil when the link does not exist
func (r *ShareLinkRepository) GetByID(id string) (*models.ShareLink, error) {
	l := &models.ShareLink{}
	err := r.db.QueryRow("SELECT "+shareLinkColumns+" FROM share_links WHERE id = ?", id).
		Scan(&l.ID, &l.Region, &l.Days, &l.CreatedBy, &l.ExpiresAt, &l.Revoked, &l.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// List returns links created by userID, or all links when userID is empty
func (r *ShareLinkRepository) List(userID string) ([]models.ShareLink, error) {
	query := "SELECT " + shareLinkColumns + " FROM share_links"
	args := []any{}
	if userID != "" {
		query += " WHERE created_by = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []models.ShareLink{}
	for rows.Next() {
		var l models.ShareLink
		if err := rows.Scan(&l.ID, &l.Region, &l.Days, &l.CreatedBy, &l.ExpiresAt, &l.Revoked, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// Revoke marks a link unusable; it reports whether the link existed
func (r *ShareLinkRepository) Revoke(id string) (bool, error) {
	res, err := r.db.Exec("UPDATE share_links SET revoked = 1 WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteExpired removes links past their expiry
func (r *ShareLinkRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM share_links WHERE expires_at <= ?", r.now().UTC().Truncate(time.Second))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
