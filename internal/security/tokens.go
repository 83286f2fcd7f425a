// Package security issues and validates the signed session tokens presented at the
// caller boundary.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, missigned, or expired.
var ErrInvalidToken = errors.New("invalid token")

// SessionClaims holds the JWT claims for a session token. The token only carries
// identity; session liveness and risk are decided per request by the lifecycle manager.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// TokenProvider signs and validates session tokens with HS256.
type TokenProvider struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenProvider returns a provider signing with secret. The secret must be
// non-empty; config validation enforces that before the server starts.
func NewTokenProvider(secret []byte, issuer, audience string) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, errors.New("security: signing secret is empty")
	}
	return &TokenProvider{secret: secret, issuer: issuer, audience: audience}, nil
}

// Issue signs a token binding sessionID and userID, expiring at expiresAt.
// Token lifetime tracks the session expiry so a token never outlives its session's
// scheduled TTL at issue time.
func (p *TokenProvider) Issue(sessionID, userID string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Validate parses and verifies the token, returning its session and user IDs.
// Returns ErrInvalidToken for any parse, signature, claim, or expiry failure.
func (p *TokenProvider) Validate(token string) (sessionID, userID string, err error) {
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.SessionID, claims.Subject, nil
}
