// Package httpx maps classified application errors onto HTTP responses so
// every handler answers failures the same way.
package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/logging"
)

var statusByCode = map[apperrors.Code]int{
	apperrors.CodeValidation:        http.StatusBadRequest,
	apperrors.CodeInsufficientFunds: http.StatusBadRequest,
	apperrors.CodeInvalidTransition: http.StatusConflict,
	apperrors.CodeNotFound:          http.StatusNotFound,
	apperrors.CodeAuthorization:     http.StatusForbidden,
	apperrors.CodeConflict:          http.StatusConflict,
	apperrors.CodeDuplicateEntry:    http.StatusConflict,
	apperrors.CodeWallet:            http.StatusInternalServerError,
}

// Error writes the error response for err. Unclassified errors and wallet
// invariant violations become an opaque 500; detail stays in the logs.
func Error(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	status, known := statusByCode[code]
	if !known {
		status = http.StatusInternalServerError
	}

	outCode := string(code)
	msg := string(code)
	var e *apperrors.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	if status >= http.StatusInternalServerError {
		logging.L(c.Request.Context()).Error("request failed",
			"status", status, "code", outCode, "error", err)
		if outCode == "" {
			outCode = "INTERNAL_ERROR"
		}
		msg = "internal error"
	}

	c.JSON(status, gin.H{"error": gin.H{"code": outCode, "message": msg}})
}

// RequireActor extracts the authenticated actor or answers 401. Missing
// authentication is not a permission failure, so it does not share the
// 403 the capability checks use.
func RequireActor(c *gin.Context) (authz.Actor, bool) {
	a, ok := authz.ActorFrom(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code": "AUTHORIZATION_ERROR", "message": "authentication required",
		}})
		return authz.Actor{}, false
	}
	return a, true
}

// RequirePermission extracts the actor and checks the capability, answering
// 403 on either failure.
func RequirePermission(c *gin.Context, p authz.Permission) (authz.Actor, bool) {
	a, ok := RequireActor(c)
	if !ok {
		return authz.Actor{}, false
	}
	if !a.Can(p) {
		Error(c, apperrors.Newf(apperrors.CodeAuthorization, "missing permission %s", p))
		return authz.Actor{}, false
	}
	return a, true
}
