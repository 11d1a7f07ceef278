package models

import "time"

// User represents a user account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is a logged-in user session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ShareLink grants read-only access to a cached dashboard view
type ShareLink struct {
	ID        string    `json:"id"`
	Region    string    `json:"region"`
	Days      int       `json:"days"`
	CreatedBy string    `json:"created_by"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the link can still be used
func (l *ShareLink) Active(now time.Time) bool {
	return !l.Revoked && now.Before(l.ExpiresAt)
}

// ActivityEntry represents an activity log entry
type ActivityEntry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	UserEmail  string    `json:"user_email"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details"` // JSON
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityFilter for filtering the activity log
type ActivityFilter struct {
	UserID     string
	Action     string
	EntityType string
	Limit      int
	Offset     int
}

// Activity actions
const (
	ActionLogin        = "login"
	ActionLogout       = "logout"
	ActionRefresh      = "refresh"
	ActionSync         = "sync"
	ActionCacheClear   = "cache_clear"
	ActionShareCreate  = "share_create"
	ActionShareRevoke  = "share_revoke"
	ActionPromptUpdate = "prompt_update"
)
