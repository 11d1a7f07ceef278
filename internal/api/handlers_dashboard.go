package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/campaignhub/internal/models"
)

// dashboardQuery holds validated dashboard parameters
type dashboardQuery struct {
	Days   int    `validate:"min=1,max=730"`
	Region string `validate:"omitempty,max=64"`
}

// parseDashboardQuery reads days and region; days defaults to the configured window
func (s *Server) parseDashboardQuery(w http.ResponseWriter, r *http.Request) (dashboardQuery, bool) {
	days, err := queryInt(r, "days", s.cfg.Refresh.DefaultDays)
	if err != nil {
		sendError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return dashboardQuery{}, false
	}
	q := dashboardQuery{Days: days, Region: r.URL.Query().Get("region")}
	if !s.validStruct(w, &q) {
		return dashboardQuery{}, false
	}
	return q, true
}

// handleDashboard handles GET /api/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseDashboardQuery(w, r)
	if !ok {
		return
	}
	force, err := queryBool(r, "force_refresh")
	if err != nil {
		sendError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	res, err := s.svc.GetDashboard(r.Context(), q.Days, q.Region, force)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	if force {
		s.logActivity(r, currentUser(r), models.ActionRefresh, "region", q.Region,
			map[string]any{"days": q.Days, "campaigns": res.Count()})
	}
	sendJSON(w, http.StatusOK, res)
}

// handleRegions handles GET /api/regions
func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{"regions": s.svc.Regions()})
}

// handleSync handles POST /api/sync
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseDashboardQuery(w, r)
	if !ok {
		return
	}

	if !s.svc.SyncAllInBackground(q.Days) {
		sendError(w, http.StatusConflict, codeConflict, "A sync is already running")
		return
	}

	s.logActivity(r, currentUser(r), models.ActionSync, "region", "", map[string]any{"days": q.Days})
	sendJSON(w, http.StatusAccepted, map[string]any{
		"status":  "Sync started for all regions",
		"days":    q.Days,
		"regions": s.svc.Regions(),
	})
}

// handleAudiences handles GET /api/audiences
func (s *Server) handleAudiences(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")

	byRegion, err := s.svc.Audiences(r.Context(), region)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	if region != "" {
		for name, lists := range byRegion {
			sendJSON(w, http.StatusOK, map[string]any{
				"region":    name,
				"audiences": lists,
				"count":     len(lists),
			})
			return
		}
	}

	total := 0
	for _, lists := range byRegion {
		total += len(lists)
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"regions": byRegion,
		"count":   total,
	})
}

// handleGrowth handles GET /api/audiences/{listId}/growth
func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "listId")
	region := r.URL.Query().Get("region")
	if region == "" {
		sendError(w, http.StatusBadRequest, codeBadRequest, "region is required")
		return
	}
	months, err := queryInt(r, "months", 12)
	if err != nil || months < 1 || months > 120 {
		sendError(w, http.StatusBadRequest, codeBadRequest, "months must be between 1 and 120")
		return
	}

	history, err := s.svc.GrowthHistory(r.Context(), region, listID, months)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	if history == nil {
		history = []models.MonthlyGrowth{}
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"region":  region,
		"list_id": listID,
		"history": history,
	})
}

// handleCacheStats handles GET /api/cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.CacheStats(r.Context())
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	if stats.ByRegion == nil {
		stats.ByRegion = map[string]int64{}
	}
	sendJSON(w, http.StatusOK, stats)
}

// handleCacheClear handles POST /api/cache/clear
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")

	deleted, err := s.svc.ClearCache(r.Context(), region)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	scope := region
	if scope == "" {
		scope = "all regions"
	}
	s.logActivity(r, currentUser(r), models.ActionCacheClear, "region", region, map[string]any{"deleted": deleted})
	sendJSON(w, http.StatusOK, map[string]any{
		"status":  "Cache cleared",
		"deleted": deleted,
		"region":  scope,
	})
}

// handleTestCredentials handles GET /api/test-credentials
func (s *Server) handleTestCredentials(w http.ResponseWriter, r *http.Request) {
	results := s.svc.TestCredentials(r.Context())
	ok := 0
	for _, res := range results {
		if res.OK {
			ok++
		}
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"regions_tested": len(results),
		"regions_ok":     ok,
		"results":        results,
	})
}
