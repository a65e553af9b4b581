package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/httpx"
	"github.com/ptzlabs/marketplace/internal/identity"
	"github.com/ptzlabs/marketplace/internal/logging"
)

// RegisterPublicRoutes wires the login endpoint. It is the only auth
// route reachable without a token.
func RegisterPublicRoutes(r gin.IRouter, mgr *Manager, users *identity.Service) {
	h := &handlers{mgr: mgr, users: users}
	r.POST("/auth/login", h.login)
}

// RegisterRoutes wires token management onto the authenticated group.
func RegisterRoutes(r gin.IRouter, mgr *Manager, users *identity.Service) {
	h := &handlers{mgr: mgr, users: users}
	r.GET("/auth/tokens", h.listTokens)
	r.DELETE("/auth/tokens/:tokenId", h.revokeToken)
	r.GET("/auth/me", h.me)
}

type handlers struct {
	mgr   *Manager
	users *identity.Service
}

func (h *handlers) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_ERROR", "message": "username and password are required"}})
		return
	}

	u, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	name := req.Name
	if name == "" {
		name = "api token"
	}
	raw, t, err := h.mgr.Issue(c.Request.Context(), u.ID, name)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	logging.L(c.Request.Context()).Info("token issued", "userId", u.ID, "tokenId", t.ID)
	c.JSON(http.StatusCreated, gin.H{
		"token":   raw,
		"tokenId": t.ID,
		"warning": "Store this token securely. It will not be shown again.",
	})
}

func (h *handlers) listTokens(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	tokens, err := h.mgr.List(c.Request.Context(), actor.UserID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens, "count": len(tokens)})
}

func (h *handlers) revokeToken(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	if err := h.mgr.Revoke(c.Request.Context(), actor.UserID, c.Param("tokenId")); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

func (h *handlers) me(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	u, err := h.users.Get(c.Request.Context(), actor.UserID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
