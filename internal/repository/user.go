package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/campaignhub/internal/models"
)

// ErrUserExists is returned when creating a user with a taken email
var ErrUserExists = errors.New("user already exists")

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user, assigning an ID when empty
func (r *UserRepository) Create(u *models.User) error {
	existing, err := r.GetByEmail(u.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%s: %w", u.Email, ErrUserExists)
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Second)
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err = r.db.Exec(`
		INSERT INTO users (id, email, password_hash, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByEmail returns nil when no user has the email
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.getOne("WHERE email = ?", email)
}

// GetByID returns nil when the user does not exist
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	return r.getOne("WHERE id = ?", id)
}

func (r *UserRepository) getOne(where string, arg any) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRow(`
		SELECT id, email, password_hash, COALESCE(name, '') as name, created_at, updated_at
		FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// List returns all users ordered by email
func (r *UserRepository) List() ([]models.User, error) {
	rows, err := r.db.Query(`
		SELECT id, email, COALESCE(name, '') as name, created_at, updated_at
		FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdatePassword replaces the password hash for the user with email.
// It reports whether a user was updated.
func (r *UserRepository) UpdatePassword(email, passwordHash string) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?",
		passwordHash, time.Now().UTC().Truncate(time.Second), email,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteByEmail removes a user and, by cascade, their sessions
func (r *UserRepository) DeleteByEmail(email string) (bool, error) {
	res, err := r.db.Exec("DELETE FROM users WHERE email = ?", email)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FindOrCreateExternal returns the user for an externally authenticated
// email, creating one without a usable password on first login.
func (r *UserRepository) FindOrCreateExternal(email, name string) (*models.User, bool, error) {
	u, err := r.GetByEmail(email)
	if err != nil {
		return nil, false, err
	}
	if u != nil {
		return u, false, nil
	}

	u = &models.User{Email: email, Name: name}
	if err := r.Create(u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}
