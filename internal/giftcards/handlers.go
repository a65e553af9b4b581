package giftcards

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/httpx"
)

// RegisterRoutes wires the user-facing redemption endpoint. Admin creation
// and deactivation go through the admin override surface.
func RegisterRoutes(r gin.IRouter, svc *Service) {
	h := &handlers{svc: svc}
	r.POST("/giftcards/redeem", h.redeem)
}

type handlers struct {
	svc *Service
}

func (h *handlers) redeem(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_ERROR", "message": "code is required"}})
		return
	}

	card, err := h.svc.Redeem(c.Request.Context(), actor.UserID, req.Code)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card": card, "credited": card.AmountUSD})
}
