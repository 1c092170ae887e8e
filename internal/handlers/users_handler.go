package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-sync/internal/auth"
)

// RegisterUserRoutes registers the signed-in user's profile route. The
// document is written by the identity-provider sync functions.
func RegisterUserRoutes(r gin.IRouter, cfg HandlerConfig) {
	session := auth.Middleware(cfg.Auth)

	r.GET("/user/data", session, handle(func(c *gin.Context) Response {
		id, _ := auth.FromContext(c)
		u, err := cfg.Users.Get(c.Request.Context(), id.UserID)
		if err != nil {
			return failure(c, err)
		}
		if u == nil {
			return Err{Message: "User not found"}
		}
		return Ok{Key: "user", Data: u}
	}))
}
