package ledger

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/httpx"
	"github.com/ptzlabs/marketplace/internal/idgen"
)

// RegisterRoutes wires the wallet endpoints onto the router group.
func RegisterRoutes(r gin.IRouter, svc *Service) {
	h := &handlers{svc: svc}

	wallet := r.Group("/wallet")
	wallet.GET("", h.getBalance)
	wallet.GET("/history", h.getHistory)
	wallet.POST("/withdrawals", h.requestWithdrawal)
}

type handlers struct {
	svc *Service
}

func (h *handlers) getBalance(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	bal, err := h.svc.Balance(c.Request.Context(), actor.UserID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h *handlers) getHistory(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.svc.History(c.Request.Context(), actor.UserID, limit, offset)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *handlers) requestWithdrawal(c *gin.Context) {
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

	entry, err := h.svc.RequestWithdrawal(c.Request.Context(), actor.UserID, req.Amount, idgen.WithPrefix("wd_"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}
