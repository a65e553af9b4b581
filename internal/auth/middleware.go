package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/identity"
)

// Middleware validates the Authorization header and installs the
// resolved actor on the request context. Requests without a valid token
// are rejected; banned accounts are rejected even with a valid token.
func Middleware(mgr *Manager, users *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := mgr.Validate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			abort(c)
			return
		}

		u, err := users.Get(c.Request.Context(), t.UserID)
		if err != nil || u.Status == identity.StatusBanned {
			abort(c)
			return
		}

		ctx := authz.WithActor(c.Request.Context(), u.Actor())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abort(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{"code": "AUTHORIZATION_ERROR", "message": "authentication required"},
	})
}
