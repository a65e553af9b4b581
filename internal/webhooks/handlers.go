package webhooks

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/httpx"
	"github.com/ptzlabs/marketplace/internal/idgen"
)

// RegisterRoutes wires the subscription management endpoints. All routes
// are owner-scoped: a user only ever sees their own webhooks.
func RegisterRoutes(r gin.IRouter, store Store) {
	h := &handlers{store: store}
	grp := r.Group("/webhooks")
	grp.POST("", h.create)
	grp.GET("", h.list)
	grp.DELETE("/:webhookId", h.remove)
}

type handlers struct {
	store Store
}

func (h *handlers) create(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		URL    string   `json:"url" binding:"required"`
		Events []string `json:"events"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_ERROR", "message": "url is required"}})
		return
	}
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		httpx.Error(c, apperrors.New(apperrors.CodeValidation, "url must be a valid http(s) URL"))
		return
	}

	secret := newSecret()
	sub := &Subscription{
		ID:        idgen.WithPrefix("wh_"),
		UserID:    actor.UserID,
		URL:       req.URL,
		Secret:    secret,
		Events:    req.Events,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		httpx.Error(c, err)
		return
	}

	// The signing secret is returned exactly once.
	c.JSON(http.StatusCreated, gin.H{"webhook": sub, "secret": secret})
}

func (h *handlers) list(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	subs, err := h.store.ListByUser(c.Request.Context(), actor.UserID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": subs})
}

func (h *handlers) remove(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	sub, err := h.store.Get(c.Request.Context(), c.Param("webhookId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if sub.UserID != actor.UserID {
		httpx.Error(c, apperrors.New(apperrors.CodeNotFound, "webhook not found"))
		return
	}
	if err := h.store.Delete(c.Request.Context(), sub.ID); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func newSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return "whs_" + hex.EncodeToString(b)
}
