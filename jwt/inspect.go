package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by Inspect for opaque (non-JWT) access tokens.
var ErrNotJWT = errors.New("access token is not a JWT")

// Inspect decodes the claims of token without verifying its signature.
// The result is for display only and must never drive authorization.
func Inspect(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrNotJWT, err)
	}
	return claims, nil
}

// ExpiresIn returns the time left until expiry at now. Tokens without an exp
// claim report ok == false.
func (c *AccessClaims) ExpiresIn(now time.Time) (d time.Duration, ok bool) {
	if c == nil || c.ExpiresAt == nil {
		return 0, false
	}
	return c.ExpiresAt.Time.Sub(now), true
}
