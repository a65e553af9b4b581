package deposits

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/httpx"
)

// RegisterRoutes wires the deposit endpoint onto the authenticated group.
func RegisterRoutes(r gin.IRouter, svc *Service) {
	h := &handlers{svc: svc}
	r.POST("/deposits", h.createDeposit)
}

// RegisterWebhook wires the Stripe callback onto the unauthenticated
// router. Stripe authenticates with the signature header, not a session.
func RegisterWebhook(r gin.IRouter, svc *Service) {
	h := &handlers{svc: svc}
	r.POST("/webhooks/stripe", h.stripeWebhook)
}

type handlers struct {
	svc *Service
}

func (h *handlers) createDeposit(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}

	var req struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_ERROR", "message": "amount is required"}})
		return
	}

	intent, err := h.svc.Create(c.Request.Context(), actor.UserID, req.Amount)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, intent)
}

func (h *handlers) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_ERROR", "message": "unreadable payload"}})
		return
	}

	if err := h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
