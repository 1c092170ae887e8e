package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront-sync/internal/logger"
)

const (
	BearerPrefix = "Bearer "
	// SessionCookie is the cookie the identity provider's frontend SDK sets.
	SessionCookie = "__session"

	identityKey = "auth.identity"
)

// Middleware rejects requests without a valid session token and stores the
// caller Identity on the gin context.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := v.Verify(tokenFrom(c))
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("session rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Unauthorized",
			})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// FromContext returns the Identity stored by Middleware.
func FromContext(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, BearerPrefix))
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}
