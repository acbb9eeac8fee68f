package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Pair is the access/refresh token pair issued by the backend on login,
// registration and every session renewal.
type Pair struct {
	// AccessToken is sent as "Authorization: Bearer <AccessToken>".
	AccessToken string `json:"accessToken" toml:"access_token"`

	// RefreshToken is exchanged at /auth/refresh for a new Pair. Backends
	// may treat it as single-use.
	RefreshToken string `json:"refreshToken" toml:"refresh_token"`
}

// IsZero reports whether the pair carries no access token.
func (p Pair) IsZero() bool {
	return p.AccessToken == ""
}

// AccessClaims are the access-token claims the client cares about.
type AccessClaims struct {
	jwt.RegisteredClaims
	Tenant string `json:"tenant,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Claims decodes the access token without verifying its signature. The
// client never trusts these values for authorization; they are used for
// display and logging. Opaque (non-JWT) access tokens return an error.
func (p Pair) Claims() (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(p.AccessToken, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the access token's exp claim is before now.
// Tokens without a readable exp are never reported as expired; the backend
// remains the authority and answers 401.
func (p Pair) Expired(now time.Time) bool {
	claims, err := p.Claims()
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return now.After(claims.ExpiresAt.Time)
}
