package api

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaignhub/internal/auth"
	"github.com/foxzi/campaignhub/internal/models"
)

// ShareRequest is the request body for POST /api/share
type ShareRequest struct {
	Region string `json:"region" validate:"omitempty,max=64"`
	Days   int    `json:"days" validate:"min=1,max=730"`
}

// ShareResponse is returned once; the token is not stored
type ShareResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Region    string    `json:"region,omitempty"`
	Days      int       `json:"days"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleShareCreate handles POST /api/share
func (s *Server) handleShareCreate(w http.ResponseWriter, r *http.Request) {
	req := ShareRequest{Days: s.cfg.Refresh.DefaultDays}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Region != "" {
		req.Region = strings.ToUpper(strings.TrimSpace(req.Region))
		if !slices.Contains(s.svc.Regions(), req.Region) {
			sendError(w, http.StatusNotFound, codeNotFound, "Region not found: "+req.Region)
			return
		}
	}

	user := currentUser(r)
	link, err := s.shares.Create(req.Region, req.Days, user.ID, s.cfg.Auth.ShareLinkTTL)
	if err != nil {
		s.logger.Error("failed to create share link", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to create share link")
		return
	}

	token, err := s.tokens.Issue(link)
	if err != nil {
		s.logger.Error("failed to sign share token", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to create share link")
		return
	}

	s.logActivity(r, user, models.ActionShareCreate, "share_link", link.ID,
		map[string]any{"region": link.Region, "days": link.Days})

	sendJSON(w, http.StatusCreated, ShareResponse{
		ID:        link.ID,
		Token:     token,
		URL:       strings.TrimRight(s.cfg.Server.PublicURL, "/") + "/shared/" + token,
		Region:    link.Region,
		Days:      link.Days,
		ExpiresAt: link.ExpiresAt,
	})
}

// handleShareList handles GET /api/share
func (s *Server) handleShareList(w http.ResponseWriter, r *http.Request) {
	links, err := s.shares.List(currentUser(r).ID)
	if err != nil {
		s.logger.Error("failed to list share links", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to list share links")
		return
	}
	if links == nil {
		links = []models.ShareLink{}
	}
	sendJSON(w, http.StatusOK, map[string]any{"links": links})
}

// handleShareRevoke handles DELETE /api/share/{id}. Only the creator may revoke.
func (s *Server) handleShareRevoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := currentUser(r)

	link, err := s.shares.GetByID(id)
	if err != nil {
		s.logger.Error("failed to load share link", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Internal error")
		return
	}
	if link == nil || link.CreatedBy != user.ID {
		sendError(w, http.StatusNotFound, codeNotFound, "Share link not found")
		return
	}

	if _, err := s.shares.Revoke(id); err != nil {
		s.logger.Error("failed to revoke share link", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to revoke share link")
		return
	}

	s.logActivity(r, user, models.ActionShareRevoke, "share_link", id, nil)
	sendJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleShared handles GET /api/shared/{token}. It serves cached data only.
func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Parse(chi.URLParam(r, "token"))
	if err != nil {
		msg := "Invalid share link"
		if errors.Is(err, auth.ErrExpiredShareToken) {
			msg = "Share link has expired"
		}
		sendError(w, http.StatusUnauthorized, codeUnauthorized, msg)
		return
	}

	link, err := s.shares.GetByID(claims.ID)
	if err != nil {
		s.logger.Error("failed to load share link", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Internal error")
		return
	}
	if link == nil || !link.Active(time.Now()) {
		sendError(w, http.StatusNotFound, codeNotFound, "Share link not found")
		return
	}

	res, err := s.svc.ReadCache(r.Context(), link.Days, link.Region)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, res)
}
