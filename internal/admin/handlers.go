package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/httpx"
	"github.com/ptzlabs/marketplace/internal/settlement"
)

// RegisterRoutes wires the admin override surface. sched may be nil when
// the scheduler runs in another process.
func RegisterRoutes(r gin.IRouter, svc *Service, sched *settlement.Scheduler) {
	h := &handlers{svc: svc, sched: sched}

	grp := r.Group("/admin")
	grp.POST("/wallet/credit", h.credit)
	grp.POST("/wallet/debit", h.debit)
	grp.POST("/wallet/freeze", h.freeze)
	grp.POST("/wallet/unfreeze", h.unfreeze)
	grp.GET("/wallet/:userId/ledger", h.userLedger)

	grp.POST("/orders/:id/refund", h.forceRefund)
	grp.POST("/orders/:id/complete", h.forceComplete)
	grp.POST("/orders/:id/extend-dispute", h.extendDispute)

	grp.POST("/users/:id/ban", h.ban)
	grp.POST("/users/:id/unban", h.unban)
	grp.POST("/users/:id/roles", h.changeRoles)
	grp.POST("/users/:id/toggle-admin", h.toggleAdmin)
	grp.POST("/users/:id/unlock-profile", h.unlockProfile)
	grp.POST("/admins", h.createAdmin)

	grp.POST("/listings/:id/hide", h.hideListing)
	grp.POST("/messages/:id/hide", h.hideMessage)

	grp.POST("/giftcards", h.createGiftcard)
	grp.POST("/giftcards/:id/deactivate", h.deactivateGiftcard)

	grp.GET("/audit", h.audit)
	grp.GET("/jobs", h.jobs)
}

type handlers struct {
	svc   *Service
	sched *settlement.Scheduler
}

// confirmBody is the step-up material shared by every override request.
type confirmBody struct {
	Password       string `json:"password" binding:"required"`
	Phrase         string `json:"phrase"`
	Reason         string `json:"reason" binding:"required"`
	IdempotencyKey string `json:"idempotencyKey"`
}

func (b confirmBody) confirm(c *gin.Context) Confirm {
	return Confirm{
		Password:       b.Password,
		Phrase:         b.Phrase,
		Reason:         b.Reason,
		IdempotencyKey: b.IdempotencyKey,
		IP:             c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION_ERROR", "message": msg}})
}

func (h *handlers) credit(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Amount string `json:"amount" binding:"required"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId, amount, password, reason and idempotencyKey are required")
		return
	}
	entry, err := h.svc.Credit(c.Request.Context(), actor, req.UserID, req.Amount, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *handlers) debit(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Amount string `json:"amount" binding:"required"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId, amount, password, reason and idempotencyKey are required")
		return
	}
	entry, err := h.svc.Debit(c.Request.Context(), actor, req.UserID, req.Amount, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *handlers) freeze(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Amount string `json:"amount" binding:"required"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId, amount, password, reason and idempotencyKey are required")
		return
	}
	entry, err := h.svc.Freeze(c.Request.Context(), actor, req.UserID, req.Amount, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *handlers) unfreeze(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Amount string `json:"amount" binding:"required"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId, amount, password, reason and idempotencyKey are required")
		return
	}
	entry, err := h.svc.Unfreeze(c.Request.Context(), actor, req.UserID, req.Amount, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *handlers) userLedger(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.svc.UserLedger(c.Request.Context(), actor, c.Param("userId"), limit, offset)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *handlers) forceRefund(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req confirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password, reason and idempotencyKey are required")
		return
	}
	o, err := h.svc.ForceRefund(c.Request.Context(), actor, c.Param("id"), req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) forceComplete(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req confirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password, reason and idempotencyKey are required")
		return
	}
	o, err := h.svc.ForceComplete(c.Request.Context(), actor, c.Param("id"), req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) extendDispute(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		Hours int `json:"hours" binding:"required"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "hours, password, reason and idempotencyKey are required")
		return
	}
	o, err := h.svc.ExtendDisputeWindow(c.Request.Context(), actor, c.Param("id"), req.Hours, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) ban(c *gin.Context)   { h.setBanned(c, true) }
func (h *handlers) unban(c *gin.Context) { h.setBanned(c, false) }

func (h *handlers) setBanned(c *gin.Context, banned bool) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req confirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password, reason and idempotencyKey are required")
		return
	}
	u, err := h.svc.SetUserBanned(c.Request.Context(), actor, c.Param("id"), banned, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handlers) changeRoles(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		Roles []authz.Role `json:"roles" binding:"required"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "roles, password, reason and idempotencyKey are required")
		return
	}
	u, err := h.svc.ChangeRoles(c.Request.Context(), actor, c.Param("id"), req.Roles, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handlers) toggleAdmin(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		Disabled *bool `json:"disabled" binding:"required"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "disabled, password, reason and idempotencyKey are required")
		return
	}
	u, err := h.svc.ToggleAdmin(c.Request.Context(), actor, c.Param("id"), *req.Disabled, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handlers) unlockProfile(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req confirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password, reason and idempotencyKey are required")
		return
	}
	u, err := h.svc.UnlockProfile(c.Request.Context(), actor, c.Param("id"), req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handlers) createAdmin(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		Username    string             `json:"username" binding:"required"`
		Email       string             `json:"email"`
		NewPassword string             `json:"newPassword" binding:"required"`
		Grants      []authz.Permission `json:"grants"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username, newPassword, password, reason and idempotencyKey are required")
		return
	}
	u, err := h.svc.CreateAdmin(c.Request.Context(), actor, req.Username, req.Email, req.NewPassword, req.Grants, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *handlers) hideListing(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req confirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password, reason and idempotencyKey are required")
		return
	}
	l, err := h.svc.HideListing(c.Request.Context(), actor, c.Param("id"), req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *handlers) hideMessage(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req confirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password, reason and idempotencyKey are required")
		return
	}
	if err := h.svc.HideMessage(c.Request.Context(), actor, c.Param("id"), req.confirm(c)); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hidden": true})
}

func (h *handlers) createGiftcard(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req struct {
		Amount    string     `json:"amount" binding:"required"`
		ExpiresAt *time.Time `json:"expiresAt"`
		confirmBody
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "amount, password, reason and idempotencyKey are required")
		return
	}
	card, err := h.svc.CreateGiftcard(c.Request.Context(), actor, req.Amount, req.ExpiresAt, req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *handlers) deactivateGiftcard(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	var req confirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password, reason and idempotencyKey are required")
		return
	}
	card, err := h.svc.DeactivateGiftcard(c.Request.Context(), actor, c.Param("id"), req.confirm(c))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *handlers) audit(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	actions, err := h.svc.Audit(c.Request.Context(), actor, AuditFilter{
		AdminID:  c.Query("adminId"),
		Type:     c.Query("type"),
		TargetID: c.Query("targetId"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (h *handlers) jobs(c *gin.Context) {
	actor, ok := httpx.RequireActor(c)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"code": "AUTHORIZATION_ERROR", "message": "admin access required"}})
		return
	}
	if h.sched == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []settlement.JobInfo{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.sched.Jobs()})
}
