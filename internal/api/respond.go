package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/foxzi/campaignhub/internal/metrics"
	"github.com/foxzi/campaignhub/internal/models"
	"github.com/foxzi/campaignhub/internal/refresh"
)

// Error codes returned in the "code" field
const (
	codeBadRequest   = "bad_request"
	codeValidation   = "validation_failed"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeRateLimited  = "rate_limited"
	codeUpstream     = "upstream_unavailable"
	codeInternal     = "internal"
)

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const maxBodyBytes = 1 << 20

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	metrics.IncAPIErrors(code)
	sendJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// sendServiceError maps orchestrator errors to HTTP statuses
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, refresh.ErrRegionNotFound):
		sendError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, refresh.ErrUpstreamUnavailable):
		sendError(w, http.StatusBadGateway, codeUpstream, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Internal error")
	}
}

// decodeJSON reads a size-limited body into v and validates it
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		sendError(w, http.StatusBadRequest, codeBadRequest, "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		sendError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body")
		return false
	}
	return s.validStruct(w, v)
}

func (s *Server) validStruct(w http.ResponseWriter, v any) bool {
	if err := s.validate.Struct(v); err != nil {
		sendError(w, http.StatusBadRequest, codeValidation, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// queryInt parses an integer query parameter; def is used when absent
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// queryBool accepts true/false/1/0; absent is false
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

// logActivity records an action by the current user; failures are logged only
func (s *Server) logActivity(r *http.Request, user *models.User, action, entityType, entityID string, details any) {
	entry := &models.ActivityEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		IPAddress:  remoteIP(r),
	}
	if user != nil {
		entry.UserID = user.ID
		entry.UserEmail = user.Email
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = string(data)
		}
	}
	if err := s.activity.Add(entry); err != nil {
		s.logger.Error("failed to record activity", "action", action, "error", err)
	}
}
