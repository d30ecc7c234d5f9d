/*
Package jwt inspects short-lived provider tokens issued by the backend.

The client never holds the signing secret, so tokens are parsed without signature
verification. Inspection only guards against using a token scoped to another user
and reports expiry for logging; the provider remains the authority on validity.
*/
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrUserMismatch is returned when a token names a different user than expected.
var ErrUserMismatch = errors.New("token is scoped to a different user")

// ErrExpired is returned when a token's exp claim is in the past.
var ErrExpired = errors.New("token is expired")

// Inspect parses tokenString without verifying its signature.
// ok is false when the token is not a JWT at all, in which case it is treated as opaque.
func Inspect(tokenString string) (payload *Payload, ok bool) {
	claims := &Payload{}

	parser := &jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, false
	}

	return claims, true
}

// Expiry returns the expiration time of the payload, zero when absent.
func (p *Payload) Expiry() time.Time {
	if p.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(p.ExpiresAt, 0)
}

// CheckScope verifies that an inspectable token belongs to userID and has not
// expired at now. Opaque tokens always pass.
func CheckScope(tokenString, userID string, now time.Time) error {
	payload, ok := Inspect(tokenString)
	if !ok {
		return nil
	}

	if payload.UserID != "" && payload.UserID != userID {
		return ErrUserMismatch
	}

	if exp := payload.Expiry(); !exp.IsZero() && !now.Before(exp) {
		return ErrExpired
	}

	return nil
}
