package orders

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/httpx"
)

// RegisterRoutes wires the order endpoints onto the router group.
func RegisterRoutes(r gin.IRouter, svc *Service) {
	h := &handlers{svc: svc}

	grp := r.Group("/orders")
	grp.POST("", h.create)
	grp.GET("", h.list)
	grp.GET("/:id", h.get)
	grp.POST("/:id/deliver", h.deliver)
	grp.POST("/:id/complete", h.complete)
	grp.POST("/:id/dispute", h.dispute)
	grp.POST("/:id/cancel", h.cancel)
}

type handlers struct {
	svc *Service
}

func (h *handlers) create(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		ListingID string `json:"listingId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_ERROR", "message": "listingId is required"}})
		return
	}

	o, err := h.svc.Create(c.Request.Context(), actor.UserID, req.ListingID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *handlers) list(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	result, err := h.svc.List(c.Request.Context(), actor.UserID,
		c.DefaultQuery("role", "buyer"), Status(c.Query("status")), limit, offset)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": result, "count": len(result)})
}

func (h *handlers) get(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	o, err := h.svc.Get(c.Request.Context(), actor.UserID, actor.IsAdmin(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) deliver(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	o, err := h.svc.Deliver(c.Request.Context(), actor.UserID, c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) complete(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	o, err := h.svc.Complete(c.Request.Context(), actor.UserID, c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) dispute(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_ERROR", "message": "reason is required"}})
		return
	}
	o, err := h.svc.Dispute(c.Request.Context(), actor.UserID, c.Param("id"), req.Reason)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) cancel(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	o, err := h.svc.Cancel(c.Request.Context(), actor.UserID, c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
