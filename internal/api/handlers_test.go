package api

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/foxzi/campaignhub/internal/auth"
	"github.com/foxzi/campaignhub/internal/config"
	"github.com/foxzi/campaignhub/internal/db"
	"github.com/foxzi/campaignhub/internal/models"
	"github.com/foxzi/campaignhub/internal/refresh"
	"github.com/foxzi/campaignhub/internal/repository"
)

const testPassword = "correct-horse-battery"

// mockService implements DashboardService
type mockService struct {
	mu sync.Mutex

	regions      []string
	dashboardErr error
	syncBusy     bool
	cleared      int64
	readyErr     error

	dashboardCalls []dashboardCall
	cacheReads     []dashboardCall
	syncDays       []int
	clearRegions   []string
}

type dashboardCall struct {
	days   int
	region string
	force  bool
}

func (m *mockService) result(region string) *refresh.Result {
	rec := models.CampaignRecord{
		ID:       "c1",
		Region:   "US",
		Title:    "Spring sale",
		SendTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Performance: &models.Performance{
			OpenRate:  0.42,
			ClickRate: 0.07,
		},
	}
	if region != "" {
		return &refresh.Result{Source: refresh.SourceCache, Region: region, Campaigns: []models.CampaignRecord{rec}}
	}
	return &refresh.Result{Source: refresh.SourceCache, ByRegion: map[string][]models.CampaignRecord{"US": {rec}, "EU": {}}}
}

func (m *mockService) GetDashboard(ctx context.Context, days int, region string, force bool) (*refresh.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dashboardCalls = append(m.dashboardCalls, dashboardCall{days, region, force})
	if m.dashboardErr != nil {
		return nil, m.dashboardErr
	}
	res := m.result(region)
	if force {
		res.Source = refresh.SourceLive
	}
	return res, nil
}

func (m *mockService) ReadCache(ctx context.Context, days int, region string) (*refresh.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheReads = append(m.cacheReads, dashboardCall{days: days, region: region})
	return m.result(region), nil
}

func (m *mockService) SyncAllInBackground(days int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncBusy {
		return false
	}
	m.syncDays = append(m.syncDays, days)
	return true
}

func (m *mockService) Regions() []string {
	return m.regions
}

func (m *mockService) Audiences(ctx context.Context, region string) (map[string][]models.AudienceSummary, error) {
	lists := []models.AudienceSummary{{ID: "l1", Name: "Newsletter", MemberCount: 120}}
	if region != "" {
		return map[string][]models.AudienceSummary{strings.ToUpper(region): lists}, nil
	}
	return map[string][]models.AudienceSummary{"US": lists, "EU": {}}, nil
}

func (m *mockService) GrowthHistory(ctx context.Context, region, listID string, months int) ([]models.MonthlyGrowth, error) {
	return []models.MonthlyGrowth{{Month: "2026-02", Subscribed: 10}}, nil
}

func (m *mockService) ClearCache(ctx context.Context, region string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearRegions = append(m.clearRegions, region)
	return m.cleared, nil
}

func (m *mockService) CacheStats(ctx context.Context) (models.CacheStats, error) {
	return models.CacheStats{Total: 3, ByRegion: map[string]int64{"US": 3}}, nil
}

func (m *mockService) TestCredentials(ctx context.Context) []models.RegionStatus {
	return []models.RegionStatus{
		{Region: "US", ServerPrefix: "us1", OK: true, Campaigns: 1, SampleCampaign: "Spring sale"},
		{Region: "EU", ServerPrefix: "us2", Error: "API key invalid"},
	}
}

func (m *mockService) Ready(ctx context.Context) error {
	return m.readyErr
}

type testEnv struct {
	server *Server
	svc    *mockService
	db     *sql.DB
	user   *models.User
	token  string
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{PublicURL: "https://hub.example.com"},
		Auth: config.AuthConfig{
			LocalEnabled:  true,
			SessionSecret: strings.Repeat("s", 32),
			SessionTTL:    time.Hour,
			ShareLinkTTL:  24 * time.Hour,
		},
		Refresh: config.RefreshConfig{DefaultDays: 30},
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	svc := &mockService{regions: []string{"US", "EU"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Options{Config: cfg, Service: svc, DB: d.DB, Version: "test", Logger: logger})

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	user := &models.User{Email: "admin@example.com", PasswordHash: hash, Name: "Admin"}
	if err := repository.NewUserRepository(d.DB).Create(user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	session, err := repository.NewSessionRepository(d.DB).Create(user.ID, time.Hour)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	return &testEnv{server: srv, svc: svc, db: d.DB, user: user, token: session.ID}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthCacheUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.readyErr = errors.New("connection refused")

	w := env.do(t, http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "unavailable" || body["error"] == "" {
		t.Errorf("body = %v", body)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Error("health response leaks the backend error")
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/dashboard"},
		{http.MethodGet, "/api/regions"},
		{http.MethodPost, "/api/sync"},
		{http.MethodGet, "/api/cache/stats"},
		{http.MethodPost, "/api/cache/clear"},
		{http.MethodPost, "/api/share"},
		{http.MethodGet, "/api/activity"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			w := env.do(t, p.method, p.path, nil, false)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if body := decodeBody(t, w); body["code"] != codeUnauthorized {
				t.Errorf("code = %v, want %s", body["code"], codeUnauthorized)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/regions", nil)
	req.Header.Set("Authorization", "Bearer not-a-session")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown session status = %d, want 401", w.Code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"valid", LoginRequest{Email: "admin@example.com", Password: testPassword}, http.StatusOK},
		{"wrong password", LoginRequest{Email: "admin@example.com", Password: "nope-nope-nope"}, http.StatusUnauthorized},
		{"unknown user", LoginRequest{Email: "ghost@example.com", Password: testPassword}, http.StatusUnauthorized},
		{"invalid email", LoginRequest{Email: "admin", Password: testPassword}, http.StatusBadRequest},
		{"missing password", LoginRequest{Email: "admin@example.com"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/auth/login", tt.body, false)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp LoginResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if resp.Token == "" || resp.User == nil || resp.User.Email != "admin@example.com" {
				t.Errorf("response = %+v", resp)
			}
			if strings.Contains(w.Body.String(), "password") {
				t.Error("response leaks password hash")
			}

			var cookie *http.Cookie
			for _, c := range w.Result().Cookies() {
				if c.Name == sessionCookie {
					cookie = c
				}
			}
			if cookie == nil || cookie.Value != resp.Token || !cookie.HttpOnly {
				t.Errorf("session cookie = %+v", cookie)
			}

			env.token = resp.Token
			if w := env.do(t, http.MethodGet, "/api/auth/me", nil, true); w.Code != http.StatusOK {
				t.Errorf("me status = %d, want 200", w.Code)
			}
		})
	}
}

func TestLoginDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Auth.LocalEnabled = false })

	w := env.do(t, http.MethodPost, "/api/auth/login",
		LoginRequest{Email: "admin@example.com", Password: testPassword}, false)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(t, http.MethodPost, "/api/auth/logout", nil, true); w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/auth/me", nil, true); w.Code != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", w.Code)
	}
}

func TestOIDCDisabled(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(t, http.MethodGet, "/auth/oidc/login", nil, false); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDashboard(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantCall   *dashboardCall
	}{
		{"defaults", "", nil, http.StatusOK, &dashboardCall{days: 30}},
		{"region and days", "?region=US&days=7", nil, http.StatusOK, &dashboardCall{days: 7, region: "US"}},
		{"forced", "?region=US&force_refresh=true", nil, http.StatusOK, &dashboardCall{days: 30, region: "US", force: true}},
		{"days too large", "?days=731", nil, http.StatusBadRequest, nil},
		{"days zero", "?days=0", nil, http.StatusBadRequest, nil},
		{"days not a number", "?days=abc", nil, http.StatusBadRequest, nil},
		{"bad force flag", "?force_refresh=maybe", nil, http.StatusBadRequest, nil},
		{"unknown region", "?region=APAC", fmt.Errorf("%w: APAC", refresh.ErrRegionNotFound), http.StatusNotFound, &dashboardCall{days: 30, region: "APAC"}},
		{"upstream down", "?region=US&force_refresh=1", fmt.Errorf("%w: US", refresh.ErrUpstreamUnavailable), http.StatusBadGateway, &dashboardCall{days: 30, region: "US", force: true}},
		{"internal", "", fmt.Errorf("disk on fire"), http.StatusInternalServerError, &dashboardCall{days: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.svc.dashboardErr = tt.err

			w := env.do(t, http.MethodGet, "/api/dashboard"+tt.query, nil, true)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCall == nil {
				if len(env.svc.dashboardCalls) != 0 {
					t.Errorf("service called on invalid input: %v", env.svc.dashboardCalls)
				}
				return
			}
			if len(env.svc.dashboardCalls) != 1 || env.svc.dashboardCalls[0] != *tt.wantCall {
				t.Errorf("calls = %v, want %v", env.svc.dashboardCalls, *tt.wantCall)
			}
		})
	}
}

func TestDashboardResponseShape(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/dashboard?region=US", nil, true)
	body := decodeBody(t, w)
	if body["source"] != refresh.SourceCache || body["region"] != "US" {
		t.Errorf("body = %v", body)
	}
	if data, ok := body["data"].([]any); !ok || len(data) != 1 {
		t.Errorf("single region data = %v, want one campaign", body["data"])
	}

	w = env.do(t, http.MethodGet, "/api/dashboard", nil, true)
	body = decodeBody(t, w)
	data, ok := body["data"].(map[string]any)
	if !ok || len(data) != 2 {
		t.Errorf("all regions data = %v, want region map", body["data"])
	}
}

func TestForcedRefreshRecordsActivity(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodGet, "/api/dashboard?region=US&force_refresh=true", nil, true)
	env.do(t, http.MethodGet, "/api/dashboard?region=US", nil, true)

	entries, total, err := repository.NewActivityRepository(env.db).List(models.ActivityFilter{Action: models.ActionRefresh})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || entries[0].UserEmail != env.user.Email || entries[0].EntityID != "US" {
		t.Errorf("refresh activity = %d %+v", total, entries)
	}
}

func TestSync(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/sync?days=14", nil, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if len(env.svc.syncDays) != 1 || env.svc.syncDays[0] != 14 {
		t.Errorf("sync days = %v, want [14]", env.svc.syncDays)
	}

	env.svc.syncBusy = true
	w = env.do(t, http.MethodPost, "/api/sync", nil, true)
	if w.Code != http.StatusConflict {
		t.Errorf("busy status = %d, want 409", w.Code)
	}
}

func TestAudiences(t *testing.T) {
	env := newTestEnv(t, nil)

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/audiences?region=us", nil, true))
	if body["region"] != "US" || body["count"] != float64(1) {
		t.Errorf("single region body = %v", body)
	}

	body = decodeBody(t, env.do(t, http.MethodGet, "/api/audiences", nil, true))
	if regions, ok := body["regions"].(map[string]any); !ok || len(regions) != 2 {
		t.Errorf("all regions body = %v", body)
	}
}

func TestGrowth(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(t, http.MethodGet, "/api/audiences/l1/growth", nil, true); w.Code != http.StatusBadRequest {
		t.Errorf("missing region status = %d, want 400", w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/audiences/l1/growth?region=US&months=6", nil, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["list_id"] != "l1" {
		t.Errorf("body = %v", body)
	}
}

func TestCacheEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.svc.cleared = 12

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/cache/stats", nil, true))
	if body["total"] != float64(3) {
		t.Errorf("stats = %v", body)
	}

	body = decodeBody(t, env.do(t, http.MethodPost, "/api/cache/clear", nil, true))
	if body["deleted"] != float64(12) || body["region"] != "all regions" {
		t.Errorf("clear all = %v", body)
	}

	body = decodeBody(t, env.do(t, http.MethodPost, "/api/cache/clear?region=EU", nil, true))
	if body["region"] != "EU" {
		t.Errorf("clear EU = %v", body)
	}

	if got := env.svc.clearRegions; len(got) != 2 || got[0] != "" || got[1] != "EU" {
		t.Errorf("clear regions = %v", got)
	}
}

func TestTestCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/test-credentials", nil, true))
	if body["regions_tested"] != float64(2) || body["regions_ok"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %v", body["results"])
	}
	if us := results[0].(map[string]any); us["sample_campaign"] != "Spring sale" || us["campaigns"] != float64(1) {
		t.Errorf("US result = %v", us)
	}
}

func TestShareLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/share", ShareRequest{Region: "us", Days: 14}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var share ShareResponse
	if err := json.Unmarshal(w.Body.Bytes(), &share); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if share.Region != "US" || share.Days != 14 {
		t.Errorf("share = %+v", share)
	}
	if share.URL != "https://hub.example.com/shared/"+share.Token {
		t.Errorf("url = %q", share.URL)
	}

	w = env.do(t, http.MethodGet, "/api/shared/"+share.Token, nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("shared status = %d: %s", w.Code, w.Body.String())
	}
	if len(env.svc.cacheReads) != 1 || env.svc.cacheReads[0] != (dashboardCall{days: 14, region: "US"}) {
		t.Errorf("cache reads = %v", env.svc.cacheReads)
	}
	if len(env.svc.dashboardCalls) != 0 {
		t.Error("shared view must not trigger a refresh")
	}

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/share", nil, true))
	if links, ok := body["links"].([]any); !ok || len(links) != 1 {
		t.Errorf("list = %v", body)
	}

	if w := env.do(t, http.MethodDelete, "/api/share/"+share.ID, nil, true); w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/shared/"+share.Token, nil, false); w.Code != http.StatusNotFound {
		t.Errorf("revoked shared status = %d, want 404", w.Code)
	}
}

func TestShareValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name       string
		body       ShareRequest
		wantStatus int
	}{
		{"all regions", ShareRequest{Days: 30}, http.StatusCreated},
		{"unknown region", ShareRequest{Region: "APAC", Days: 30}, http.StatusNotFound},
		{"days too large", ShareRequest{Days: 1000}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/share", tt.body, true)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestSharedInvalidToken(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(t, http.MethodGet, "/api/shared/garbage", nil, false); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	// signed with another secret
	other := auth.NewShareTokens(strings.Repeat("x", 32))
	token, err := other.Issue(&models.ShareLink{ID: "l1", Days: 30, ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if w := env.do(t, http.MethodGet, "/api/shared/"+token, nil, false); w.Code != http.StatusUnauthorized {
		t.Errorf("foreign token status = %d, want 401", w.Code)
	}
}

func TestShareRevokeOtherUser(t *testing.T) {
	env := newTestEnv(t, nil)

	other := &models.User{Email: "other@example.com", Name: "Other"}
	if err := repository.NewUserRepository(env.db).Create(other); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	link, err := repository.NewShareLinkRepository(env.db).Create("", 30, other.ID, time.Hour)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if w := env.do(t, http.MethodDelete, "/api/share/"+link.ID, nil, true); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPromptSettings(t *testing.T) {
	env := newTestEnv(t, nil)

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/settings/prompt", nil, true))
	if body["is_default"] != true {
		t.Errorf("initial = %v", body)
	}

	w := env.do(t, http.MethodPut, "/api/settings/prompt", PromptTemplate{Template: "{{.Scope"}, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("broken template status = %d, want 400", w.Code)
	}

	custom := "Campaigns in {{.Scope}}: {{.Totals.Campaigns}}"
	w = env.do(t, http.MethodPut, "/api/settings/prompt", PromptTemplate{Template: custom}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", w.Code, w.Body.String())
	}
	body = decodeBody(t, w)
	if body["template"] != custom || body["is_default"] != false {
		t.Errorf("saved = %v", body)
	}

	body = decodeBody(t, env.do(t, http.MethodPost, "/api/insights/prompt", InsightsRequest{Region: "US", Days: 7}, true))
	if body["prompt"] != "Campaigns in region US: 1" {
		t.Errorf("rendered = %v", body)
	}

	w = env.do(t, http.MethodPut, "/api/settings/prompt", PromptTemplate{}, true)
	if body := decodeBody(t, w); body["is_default"] != true {
		t.Errorf("after reset = %v", body)
	}
}

func TestActivity(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodPost, "/api/sync", nil, true)
	env.do(t, http.MethodPost, "/api/cache/clear", nil, true)

	body := decodeBody(t, env.do(t, http.MethodGet, "/api/activity", nil, true))
	if body["total"] != float64(2) {
		t.Errorf("total = %v, want 2", body["total"])
	}

	body = decodeBody(t, env.do(t, http.MethodGet, "/api/activity?action=sync", nil, true))
	if body["total"] != float64(1) {
		t.Errorf("filtered total = %v, want 1", body["total"])
	}

	if w := env.do(t, http.MethodGet, "/api/activity?limit=0", nil, true); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = config.RateLimitConfig{Requests: 2, Window: time.Minute}
	})

	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodGet, "/health", nil, false); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := env.do(t, http.MethodGet, "/health", nil, false)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != codeRateLimited {
		t.Errorf("code = %v", body["code"])
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.CORSOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/dashboard", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/nope", nil, false)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != codeNotFound {
		t.Errorf("code = %v", body["code"])
	}
}
