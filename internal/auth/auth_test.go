package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptzlabs/marketplace/internal/apperrors"
	"github.com/ptzlabs/marketplace/internal/authz"
	"github.com/ptzlabs/marketplace/internal/httpx"
	"github.com/ptzlabs/marketplace/internal/identity"
)

func newTestUsers(t *testing.T) (*identity.Service, *identity.User) {
	t.Helper()
	store := identity.NewMemoryStore()
	svc := identity.NewService(store)

	hash, err := identity.HashPassword("hunter2!")
	require.NoError(t, err)
	u := &identity.User{
		ID:           "usr_1",
		Username:     "alice",
		Email:        "alice@example.com",
		Roles:        []authz.Role{authz.RoleUser},
		Status:       identity.StatusActive,
		SellerLevel:  "bronze",
		SalesVolume:  "0.00",
		PasswordHash: hash,
	}
	require.NoError(t, store.Create(context.Background(), u))
	return svc, u
}

func TestIssueAndValidate(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	raw, tok, err := mgr.Issue(ctx, "usr_1", "ci token")
	require.NoError(t, err)
	assert.Contains(t, raw, "mk_")
	assert.Equal(t, "usr_1", tok.UserID)

	got, err := mgr.Validate(ctx, "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
}

func TestValidateRejectsGarbage(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	for _, raw := range []string{"", "mk_deadbeef", "Bearer something-else"} {
		_, err := mgr.Validate(ctx, raw)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthorization), "token %q", raw)
	}
}

func TestRevokedTokenStopsWorking(t *testing.T) {
	mgr := NewManager(NewMemoryStore())
	ctx := context.Background()

	raw, tok, err := mgr.Issue(ctx, "usr_1", "short lived")
	require.NoError(t, err)
	require.NoError(t, mgr.Revoke(ctx, "usr_1", tok.ID))

	_, err = mgr.Validate(ctx, raw)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthorization))
}

func TestExpiredTokenRejected(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store)
	ctx := context.Background()

	raw, tok, err := mgr.Issue(ctx, "usr_1", "expiring")
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	tok.ExpiresAt = &past
	require.NoError(t, store.Update(ctx, tok))

	_, err = mgr.Validate(ctx, raw)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthorization))
}

func TestMiddlewareInstallsActor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users, u := newTestUsers(t)
	mgr := NewManager(NewMemoryStore())
	raw, _, err := mgr.Issue(context.Background(), u.ID, "test")
	require.NoError(t, err)

	router := gin.New()
	router.Use(Middleware(mgr, users))
	router.GET("/whoami", func(c *gin.Context) {
		actor, ok := httpx.RequireActor(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": actor.UserID})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), u.ID)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users, _ := newTestUsers(t)
	router := gin.New()
	router.Use(Middleware(NewManager(NewMemoryStore()), users))
	router.GET("/whoami", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareRejectsBannedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users, u := newTestUsers(t)
	mgr := NewManager(NewMemoryStore())
	raw, _, err := mgr.Issue(context.Background(), u.ID, "test")
	require.NoError(t, err)

	_, err = users.SetStatus(context.Background(), u.ID, identity.StatusBanned)
	require.NoError(t, err)

	router := gin.New()
	router.Use(Middleware(mgr, users))
	router.GET("/whoami", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginIssuesToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users, _ := newTestUsers(t)
	mgr := NewManager(NewMemoryStore())

	router := gin.New()
	RegisterPublicRoutes(router, mgr, users)

	body := `{"username":"alice","password":"hunter2!"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "mk_")
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)

	users, _ := newTestUsers(t)
	router := gin.New()
	RegisterPublicRoutes(router, NewManager(NewMemoryStore()), users)

	body := `{"username":"alice","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
