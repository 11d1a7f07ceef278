package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/campaignhub/internal/models"
)

func TestGenerateState(t *testing.T) {
	state1, err := generateState()
	if err != nil {
		t.Fatalf("generateState() error = %v", err)
	}
	state2, err := generateState()
	if err != nil {
		t.Fatalf("generateState() error = %v", err)
	}

	if state1 == state2 {
		t.Error("generateState() returned duplicate states")
	}
	// 32 bytes base64 encoded = 44 chars
	if len(state1) != 44 {
		t.Errorf("generateState() length = %d, want 44", len(state1))
	}
}

func TestOIDCProvider_StateLifecycle(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	p := &OIDCProvider{
		states: make(map[string]time.Time),
		now:    func() time.Time { return now },
	}

	url, state, err := p.AuthCodeURL()
	if err != nil {
		t.Fatalf("AuthCodeURL() error = %v", err)
	}
	if !strings.Contains(url, "state=") {
		t.Errorf("AuthCodeURL() = %q, missing state", url)
	}

	if !p.consumeState(state) {
		t.Error("issued state rejected")
	}
	if p.consumeState(state) {
		t.Error("state accepted twice")
	}
	if p.consumeState("never-issued") {
		t.Error("unknown state accepted")
	}

	_, expired, _ := p.AuthCodeURL()
	now = now.Add(stateTTL + time.Second)
	if p.consumeState(expired) {
		t.Error("expired state accepted")
	}

	// expired states are pruned on the next login
	p.states["stale"] = now.Add(-time.Minute)
	if _, _, err := p.AuthCodeURL(); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.states["stale"]; ok {
		t.Error("expired state not pruned")
	}
}

func TestGroupAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		groups  []string
		want    bool
	}{
		{"no allow list", nil, nil, true},
		{"member", []string{"marketing", "ops"}, []string{"eng", "ops"}, true},
		{"not member", []string{"marketing"}, []string{"eng"}, false},
		{"no groups", []string{"marketing"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := groupAllowed(tt.allowed, tt.groups); got != tt.want {
				t.Errorf("groupAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("HashPassword(short) error = %v", err)
	}

	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CheckPassword(hash, "correct horse battery") {
		t.Error("CheckPassword() rejected the right password")
	}
	if CheckPassword(hash, "wrong password!") {
		t.Error("CheckPassword() accepted a wrong password")
	}
	if CheckPassword("", "anything at all") {
		t.Error("CheckPassword() accepted an empty hash")
	}
}

func TestShareTokens(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tokens := NewShareTokens("0123456789abcdef0123456789abcdef")
	tokens.now = func() time.Time { return now }

	link := &models.ShareLink{
		ID:        "link-1",
		Region:    "US",
		Days:      30,
		CreatedBy: "user-1",
		ExpiresAt: now.Add(24 * time.Hour),
	}

	token, err := tokens.Issue(link)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.ID != "link-1" || claims.Region != "US" || claims.Days != 30 {
		t.Errorf("claims = %+v", claims)
	}

	// tampered
	if _, err := tokens.Parse(token + "x"); !errors.Is(err, ErrInvalidShareToken) {
		t.Errorf("Parse(tampered) error = %v", err)
	}

	// other secret
	other := NewShareTokens("another-secret-another-secret-xx")
	other.now = tokens.now
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidShareToken) {
		t.Errorf("Parse(other secret) error = %v", err)
	}

	// expired
	tokens.now = func() time.Time { return now.Add(48 * time.Hour) }
	if _, err := tokens.Parse(token); !errors.Is(err, ErrExpiredShareToken) {
		t.Errorf("Parse(expired) error = %v", err)
	}

	if _, err := tokens.Parse("not-a-jwt"); !errors.Is(err, ErrInvalidShareToken) {
		t.Errorf("Parse(garbage) error = %v", err)
	}
}
