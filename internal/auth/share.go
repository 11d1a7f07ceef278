package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foxzi/campaignhub/internal/models"
)

const shareIssuer = "campaignhub"

var (
	ErrInvalidShareToken = errors.New("invalid share token")
	ErrExpiredShareToken = errors.New("share token has expired")
)

// ShareClaims identify a share link. The token ID is the share_links row ID
// so a revoked link invalidates its token.
type ShareClaims struct {
	jwt.RegisteredClaims
	Region string `json:"region,omitempty"`
	Days   int    `json:"days"`
}

// ShareTokens signs and verifies share link tokens
type ShareTokens struct {
	secret []byte
	now    func() time.Time
}

func NewShareTokens(secret string) *ShareTokens {
	return &ShareTokens{secret: []byte(secret), now: time.Now}
}

// Issue returns a signed token for link
func (s *ShareTokens) Issue(link *models.ShareLink) (string, error) {
	claims := &ShareClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        link.ID,
			Issuer:    shareIssuer,
			Subject:   link.CreatedBy,
			ExpiresAt: jwt.NewNumericDate(link.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
		Region: link.Region,
		Days:   link.Days,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse verifies a token and returns its claims. Callers still check the
// link row for revocation.
func (s *ShareTokens) Parse(tokenString string) (*ShareClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ShareClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidShareToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(shareIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredShareToken
		}
		return nil, ErrInvalidShareToken
	}

	claims, ok := token.Claims.(*ShareClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidShareToken
	}
	return claims, nil
}
