package models

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenSegments is the number of dot-separated parts of a well-formed access token.
const tokenSegments = 3

// WellFormedToken reports whether tok has exactly three non-empty
// dot-separated segments. The signature is never verified client-side.
func WellFormedToken(tok string) bool {
	parts := strings.Split(tok, ".")
	if len(parts) != tokenSegments {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// AccessClaims is the subset of access token claims the client reads.
type AccessClaims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// ParseAccessClaims decodes the access token's payload without verifying it.
// ok is false for opaque or undecodable tokens; callers must then treat the
// expiry as unknown rather than as expired.
func ParseAccessClaims(tok string) (claims AccessClaims, ok bool) {
	if !WellFormedToken(tok) {
		return AccessClaims{}, false
	}
	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &registered); err != nil {
		return AccessClaims{}, false
	}
	claims.Subject = registered.Subject
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, true
}

// ExpiresWithin reports whether the claims carry an expiry that falls
// before now+skew.
func (c AccessClaims) ExpiresWithin(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Before(now.Add(skew))
}
