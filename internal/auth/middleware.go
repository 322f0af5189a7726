package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/asmraihan/fluidiy-lab-app/internal/token"
)

type contextKey string

const identityKey contextKey = "authIdentity"

// Verifier is the subset of the token authenticator the gate needs.
type Verifier interface {
	Verify(token string) (token.Identity, error)
}

// CurrentIdentity retrieves the authenticated identity from context.
func CurrentIdentity(ctx context.Context) (token.Identity, bool) {
	if ctx == nil {
		return token.Identity{}, false
	}
	id, ok := ctx.Value(identityKey).(token.Identity)
	return id, ok
}

// RequireAuth validates bearer tokens and injects the verified identity
// into the request context. All verification failures produce the same
// generic 401; the distinction is logged only.
func RequireAuth(verifier Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := extractBearerToken(c.Request.Header.Get("Authorization"))
		if err != nil {
			unauthorized(c)
			return
		}

		identity, err := verifier.Verify(raw)
		if err != nil {
			logger.Debug("token rejected",
				zap.Bool("expired", errors.Is(err, token.ErrExpired)),
				zap.Bool("tampered", errors.Is(err, token.ErrTampered)))
			unauthorized(c)
			return
		}

		ctx := context.WithValue(c.Request.Context(), identityKey, identity)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireOwner rejects the request with 403 unless the authenticated
// identity owns the resource. Returns true when the caller may proceed.
func RequireOwner(c *gin.Context, ownerID int64) bool {
	identity, ok := CurrentIdentity(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	if identity.UserID != ownerID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	value := strings.TrimSpace(parts[1])
	if value == "" {
		return "", errors.New("token missing")
	}
	return value, nil
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
