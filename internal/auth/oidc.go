package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/foxzi/campaignhub/internal/config"
)

// stateTTL bounds how long a login may take between redirect and callback
const stateTTL = 10 * time.Minute

var (
	ErrInvalidState = errors.New("invalid state")
	ErrNotInGroup   = errors.New("user not in allowed groups")
)

// OIDCProvider handles single sign-on through an OpenID Connect issuer
type OIDCProvider struct {
	allowedGroups []string
	oauth2        oauth2.Config
	verifier      *oidc.IDTokenVerifier

	mu     sync.Mutex
	states map[string]time.Time // state -> expiry
	now    func() time.Time
}

// NewOIDCProvider discovers the issuer. It returns nil when OIDC is disabled.
func NewOIDCProvider(ctx context.Context, cfg config.OIDCConfig) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &OIDCProvider{
		allowedGroups: cfg.AllowedGroups,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		states:   make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

// AuthCodeURL returns the issuer login URL and the state it carries
func (p *OIDCProvider) AuthCodeURL() (string, string, error) {
	state, err := generateState()
	if err != nil {
		return "", "", err
	}

	p.mu.Lock()
	p.pruneStates()
	p.states[state] = p.now().Add(stateTTL)
	p.mu.Unlock()

	return p.oauth2.AuthCodeURL(state), state, nil
}

// consumeState reports whether state was issued and unexpired; a state is
// usable once
func (p *OIDCProvider) consumeState(state string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	expires, ok := p.states[state]
	delete(p.states, state)
	return ok && p.now().Before(expires)
}

// pruneStates drops expired states; callers hold mu
func (p *OIDCProvider) pruneStates() {
	now := p.now()
	for s, expires := range p.states {
		if !now.Before(expires) {
			delete(p.states, s)
		}
	}
}

// Exchange trades the authorization code for a verified identity
func (p *OIDCProvider) Exchange(ctx context.Context, state, code string) (*UserInfo, error) {
	if !p.consumeState(state) {
		return nil, ErrInvalidState
	}

	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}

	var claims struct {
		Email  string   `json:"email"`
		Name   string   `json:"name"`
		Groups []string `json:"groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("id_token has no email claim")
	}

	if !groupAllowed(p.allowedGroups, claims.Groups) {
		return nil, ErrNotInGroup
	}

	return &UserInfo{
		Email:  claims.Email,
		Name:   claims.Name,
		Groups: claims.Groups,
	}, nil
}

// groupAllowed reports whether any user group is allowed; no allow list
// admits everyone
func groupAllowed(allowed, groups []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, g := range groups {
		if slices.Contains(allowed, g) {
			return true
		}
	}
	return false
}

// UserInfo is the identity returned by the issuer
type UserInfo struct {
	Email  string
	Name   string
	Groups []string
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
