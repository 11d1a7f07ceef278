package repository

import (
	"database/sql"
	"time"

	"github.com/foxzi/campaignhub/internal/models"
)

type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Add records an activity entry
func (r *ActivityRepository) Add(entry *models.ActivityEntry) error {
	entry.CreatedAt = time.Now().UTC()
	res, err := r.db.Exec(`
		INSERT INTO activity_log (user_id, user_email, action, entity_type, entity_id, details, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID, entry.UserEmail, entry.Action, entry.EntityType, entry.EntityID, nullIfEmpty(entry.Details), entry.IPAddress, entry.CreatedAt,
	)
	if err != nil {
		return err
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// List returns entries newest first with the total matching count
func (r *ActivityRepository) List(filter models.ActivityFilter) ([]models.ActivityEntry, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		where += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		where += " AND entity_type = ?"
		args = append(args, filter.EntityType)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM activity_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, COALESCE(user_id, '') as user_id, COALESCE(user_email, '') as user_email,
			action, COALESCE(entity_type, '') as entity_type, COALESCE(entity_id, '') as entity_id,
			COALESCE(details, '') as details, COALESCE(ip_address, '') as ip_address, created_at
		FROM activity_log` + where + " ORDER BY id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []models.ActivityEntry{}
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserEmail, &e.Action, &e.EntityType, &e.EntityID, &e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
