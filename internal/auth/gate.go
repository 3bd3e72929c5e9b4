// Package auth is the connection gate: it verifies the bearer credential
// carried on the websocket handshake and attaches the decoded identity to
// the request context. Nothing is persisted here; presence registration
// happens lazily on the first join.
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/domain"
)

const identityKey = "identity"

var (
	ErrTokenMissing = errors.New("token missing")
	ErrInvalidToken = errors.New("invalid token")
)

// ParseToken verifies an HS256 credential against the shared secret and
// decodes the subject identity from the "id" and "name" claims.
func ParseToken(token, secret string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrTokenMissing
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	id, ok := claims["id"].(float64)
	if !ok {
		return domain.Identity{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name = fmt.Sprintf("user-%d", int64(id))
	}

	identity, err := domain.NewIdentity(domain.UserID(id), name)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	return identity, nil
}

// Middleware rejects the connection attempt before the upgrade when the
// credential is missing or fails verification.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := ParseToken(c.Query("token"), secret)
		if err != nil {
			reason := "INVALID_TOKEN"
			if errors.Is(err, ErrTokenMissing) {
				reason = "TOKEN_MISSING"
			}
			log.Warn().Str("module", "auth").Str("reason", reason).Msg("connection rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the identity the gate attached, if any.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}
