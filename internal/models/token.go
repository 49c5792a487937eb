package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair as returned by the login, register and refresh endpoints
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Credentials is a token pair together with its storage expiry. Both tokens
// share one expiry: they are written and cleared together, never one at a time.
type Credentials struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// AccessTokenExpiry reads the exp claim of a JWT access token without
// verifying the signature. Display only: the token stays an opaque bearer
// string for every authorization decision.
func AccessTokenExpiry(access string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
