package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/ptzlabs/marketplace/internal/authz"
)

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/actor", func(c *gin.Context) {
		if _, ok := RequireActor(c); !ok {
			return
		}
		c.Status(http.StatusOK)
	})
	r.GET("/perm", func(c *gin.Context) {
		if _, ok := RequirePermission(c, authz.PermWalletAdjust); !ok {
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func get(r *gin.Engine, path string, actor *authz.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if actor != nil {
		req = req.WithContext(authz.WithActor(req.Context(), *actor))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMissingAuthenticationIsUnauthorized(t *testing.T) {
	r := router()

	w := get(r, "/actor", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "authentication required")
}

func TestMissingPermissionIsForbidden(t *testing.T) {
	r := router()

	// Authenticated but without the capability: 403, not 401.
	user := authz.Actor{UserID: "usr_1", Roles: []authz.Role{authz.RoleUser}}
	w := get(r, "/perm", &user)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Unauthenticated on the same route: 401.
	w = get(r, "/perm", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	admin := authz.Actor{UserID: "usr_2", Roles: []authz.Role{authz.RoleSuperAdmin}}
	w = get(r, "/perm", &admin)
	assert.Equal(t, http.StatusOK, w.Code)
}
