package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrTokenExpired means the stored token can no longer be used and the user
// has to sign in again
var ErrTokenExpired = errors.New("auth token expired, please sign in again")

// TokenExpired reports whether token is a JWT whose exp claim is before now.
// The signature is not checked: the server stays the authority, this only
// avoids connecting with a token that is certain to be refused. Opaque
// (non-JWT) tokens are never considered expired.
func TokenExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	if _, ok := claims["exp"]; !ok {
		return false
	}
	return !claims.VerifyExpiresAt(now.Unix(), true)
}

// UserIDFromToken returns the user id carried by a JWT, looking at the
// "userId", "user_id" and "sub" claims in that order.
func UserIDFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, k := range []string{"userId", "user_id", "sub"} {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
