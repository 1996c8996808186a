package middleware

import (
	"context"
	"strings"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
	apperrors "murmur/pkg/errors"
	"murmur/pkg/logger"
	"murmur/pkg/tracing"

	"github.com/gin-gonic/gin"
)

const identityKey = "murmur.identity"

// AuthMiddleware resolves the bearer token to an identity and stores it on
// the gin context. Any failure is a 401 with no detail.
func AuthMiddleware(verifier ports.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, apperrors.NewUnauthorizedError("unauthorized"))
			return
		}

		identity, err := verifier.Authenticate(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(identityKey, identity)
		ctx := logger.WithUserID(c.Request.Context(), string(identity.ID))
		tracing.AddSpanAttributes(ctx, tracing.UserIDKey.String(string(identity.ID)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// IdentityFromContext returns the identity stored by AuthMiddleware.
func IdentityFromContext(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}

type adminChecker interface {
	RequireAdmin(ctx context.Context, actor domain.Identity) error
}

// AdminMiddleware lets the request through only for active admins. It must
// run after AuthMiddleware.
func AdminMiddleware(admin adminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			abort(c, apperrors.NewUnauthorizedError("unauthorized"))
			return
		}
		if err := admin.RequireAdmin(c.Request.Context(), identity); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

type keyAuthorizer interface {
	Authorize(key string) error
}

// WidgetKeyMiddleware checks the shared widget secret in x-api-key.
func WidgetKeyMiddleware(guests keyAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := guests.Authorize(c.GetHeader("x-api-key")); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
