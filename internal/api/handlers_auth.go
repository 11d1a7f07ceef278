package api

import (
	"context"
	"net/http"
	"time"

	"github.com/foxzi/campaignhub/internal/auth"
	"github.com/foxzi/campaignhub/internal/models"
)

// LoginRequest is the request body for POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the session; Token works as a bearer credential
type LoginResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	Uptime  string   `json:"uptime"`
	Regions []string `json:"regions"`
	Error   string   `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Truncate(time.Second).String(),
		Regions: s.svc.Regions(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.svc.Ready(ctx); err != nil {
		s.logger.Warn("cache backend not ready", "error", err)
		resp.Status = "unavailable"
		resp.Error = "cache backend unavailable"
		sendJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Auth.LocalEnabled {
		sendError(w, http.StatusForbidden, codeForbidden, "Password login is disabled")
		return
	}

	var req LoginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	user, err := s.users.GetByEmail(req.Email)
	if err != nil {
		s.logger.Error("failed to load user", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Internal error")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.logger.Warn("failed login", "email", req.Email, "remote_addr", r.RemoteAddr)
		sendError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid email or password")
		return
	}

	session, ok := s.startSession(w, r, user)
	if !ok {
		return
	}

	user.PasswordHash = ""
	sendJSON(w, http.StatusOK, LoginResponse{User: user, Token: session.ID, ExpiresAt: session.ExpiresAt})
}

// startSession creates a session, sets its cookie and records the login
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Session, bool) {
	session, err := s.sessions.Create(user.ID, s.cfg.Auth.SessionTTL)
	if err != nil {
		s.logger.Error("failed to create session", "error", err, "email", user.Email)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to create session")
		return nil, false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.Server.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})

	s.logActivity(r, user, models.ActionLogin, "user", user.ID, nil)
	return session, true
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := sessionID(r); id != "" {
		user, _ := s.sessions.GetUser(id)
		if err := s.sessions.Delete(id); err != nil {
			s.logger.Error("failed to delete session", "error", err)
		}
		if user != nil {
			s.logActivity(r, user, models.ActionLogout, "user", user.ID, nil)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
	sendJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, currentUser(r))
}

// handleOIDCLogin redirects to the issuer
func (s *Server) handleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	if s.oidc == nil {
		sendError(w, http.StatusNotFound, codeNotFound, "OIDC is not configured")
		return
	}

	url, state, err := s.oidc.AuthCodeURL()
	if err != nil {
		s.logger.Error("failed to generate auth URL", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to initiate login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oidc_state",
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   s.cfg.Server.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// handleOIDCCallback completes single sign-on and starts a session
func (s *Server) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if s.oidc == nil {
		sendError(w, http.StatusNotFound, codeNotFound, "OIDC is not configured")
		return
	}

	stateCookie, err := r.Cookie("oidc_state")
	http.SetCookie(w, &http.Cookie{
		Name:     "oidc_state",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	state := r.URL.Query().Get("state")
	if err != nil || state == "" || state != stateCookie.Value {
		sendError(w, http.StatusBadRequest, codeBadRequest, "Invalid state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		desc := r.URL.Query().Get("error_description")
		if desc == "" {
			desc = r.URL.Query().Get("error")
		}
		if desc == "" {
			desc = "Authorization failed"
		}
		sendError(w, http.StatusUnauthorized, codeUnauthorized, desc)
		return
	}

	info, err := s.oidc.Exchange(r.Context(), state, code)
	if err != nil {
		s.logger.Error("OIDC exchange failed", "error", err)
		sendError(w, http.StatusUnauthorized, codeUnauthorized, "Authentication failed")
		return
	}

	user, created, err := s.users.FindOrCreateExternal(info.Email, info.Name)
	if err != nil {
		s.logger.Error("failed to create OIDC user", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to create user")
		return
	}
	if created {
		s.logger.Info("created OIDC user", "email", info.Email)
	}

	if _, ok := s.startSession(w, r, user); !ok {
		return
	}

	target := s.cfg.Server.PublicURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
