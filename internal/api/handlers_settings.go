package api

import (
	"net/http"

	"github.com/foxzi/campaignhub/internal/models"
	"github.com/foxzi/campaignhub/internal/prompt"
	"github.com/foxzi/campaignhub/internal/repository"
)

// handleActivity handles GET /api/activity
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit < 1 || limit > 500 {
		sendError(w, http.StatusBadRequest, codeBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		sendError(w, http.StatusBadRequest, codeBadRequest, "offset must not be negative")
		return
	}

	entries, total, err := s.activity.List(models.ActivityFilter{
		UserID:     r.URL.Query().Get("user_id"),
		Action:     r.URL.Query().Get("action"),
		EntityType: r.URL.Query().Get("entity_type"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.logger.Error("failed to list activity", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to list activity")
		return
	}
	if entries == nil {
		entries = []models.ActivityEntry{}
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// PromptTemplate is the body of the prompt settings endpoints
type PromptTemplate struct {
	Template  string `json:"template" validate:"max=20000"`
	IsDefault bool   `json:"is_default"`
}

func (s *Server) promptTemplate() (string, bool, error) {
	tmpl, err := s.settings.GetSetting(repository.SettingPromptTemplate)
	if err != nil {
		return "", false, err
	}
	if tmpl == "" {
		return prompt.DefaultTemplate, true, nil
	}
	return tmpl, false, nil
}

// handlePromptGet handles GET /api/settings/prompt
func (s *Server) handlePromptGet(w http.ResponseWriter, r *http.Request) {
	tmpl, isDefault, err := s.promptTemplate()
	if err != nil {
		s.logger.Error("failed to load prompt template", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to load template")
		return
	}
	sendJSON(w, http.StatusOK, PromptTemplate{Template: tmpl, IsDefault: isDefault})
}

// handlePromptPut handles PUT /api/settings/prompt. An empty template restores the default.
func (s *Server) handlePromptPut(w http.ResponseWriter, r *http.Request) {
	var req PromptTemplate
	if !s.decodeJSON(w, r, &req) {
		return
	}

	var err error
	if req.Template == "" {
		err = s.settings.DeleteSetting(repository.SettingPromptTemplate)
	} else {
		if verr := prompt.Validate(req.Template); verr != nil {
			sendError(w, http.StatusBadRequest, codeValidation, verr.Error())
			return
		}
		err = s.settings.SetSetting(repository.SettingPromptTemplate, req.Template)
	}
	if err != nil {
		s.logger.Error("failed to save prompt template", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to save template")
		return
	}

	s.logActivity(r, currentUser(r), models.ActionPromptUpdate, "setting", repository.SettingPromptTemplate,
		map[string]any{"reset": req.Template == ""})
	s.handlePromptGet(w, r)
}

// InsightsRequest is the request body for POST /api/insights/prompt
type InsightsRequest struct {
	Region string `json:"region" validate:"omitempty,max=64"`
	Days   int    `json:"days" validate:"min=1,max=730"`
}

// handleInsightsPrompt renders the analysis prompt over cached campaigns
func (s *Server) handleInsightsPrompt(w http.ResponseWriter, r *http.Request) {
	req := InsightsRequest{Days: s.cfg.Refresh.DefaultDays}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	res, err := s.svc.ReadCache(r.Context(), req.Days, req.Region)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	tmpl, _, err := s.promptTemplate()
	if err != nil {
		s.logger.Error("failed to load prompt template", "error", err)
		sendError(w, http.StatusInternalServerError, codeInternal, "Failed to load template")
		return
	}

	text, err := prompt.Render(tmpl, prompt.Summarize(res.All(), res.Region, req.Days))
	if err != nil {
		s.logger.Warn("failed to render prompt", "error", err)
		sendError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"prompt":    text,
		"region":    res.Region,
		"days":      req.Days,
		"campaigns": res.Count(),
	})
}
