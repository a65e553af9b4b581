package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptzlabs/marketplace/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                    "0",
		Env:                     "development",
		LogLevel:                "error",
		LogFormat:               "text",
		AllowedOrigins:          []string{"*"},
		DisputeWindowHours:      24,
		SellerProtectionDays:    10,
		DefaultFeePercent:       "5",
		LargeAmountThreshold:    "1000",
		AutoCompleteInterval:    "15m",
		ReleaseEarningsInterval: "1h",
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv, err := New(testConfig())
	require.NoError(t, err)
	return srv
}

func do(srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func login(t *testing.T, srv *Server, username, password string) string {
	t.Helper()
	w := do(srv, http.MethodPost, "/api/v1/auth/login", "",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.Token, "mk_"))
	return resp.Token
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w := do(srv, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scheduler")
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(t)

	w := do(srv, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv := newTestServer(t)

	w := do(srv, http.MethodGet, "/api/v1/wallet", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginAndWalletBalance(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "demo_buyer", "buyerpass")

	w := do(srv, http.MethodGet, "/api/v1/wallet", token, "")
	require.Equal(t, http.StatusOK, w.Code)

	var bal struct {
		Available string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, "500.00", bal.Available, "demo buyer starts funded")
}

func TestBuyFlowEndToEnd(t *testing.T) {
	srv := newTestServer(t)
	buyer := login(t, srv, "demo_buyer", "buyerpass")
	seller := login(t, srv, "demo_seller", "sellerpass")

	// Buyer purchases the demo listing; price goes into escrow.
	w := do(srv, http.MethodPost, "/api/v1/orders", buyer, `{"listingId":"lst_0000000000000001"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, "PAID", order.Status)

	w = do(srv, http.MethodGet, "/api/v1/wallet", buyer, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "475.00")

	// Seller delivers, buyer confirms.
	w = do(srv, http.MethodPost, "/api/v1/orders/"+order.ID+"/deliver", seller, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(srv, http.MethodPost, "/api/v1/orders/"+order.ID+"/complete", buyer, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Seller earnings land in pending (25.00 minus 5% fee).
	w = do(srv, http.MethodGet, "/api/v1/wallet", seller, "")
	require.Equal(t, http.StatusOK, w.Code)

	var bal struct {
		Pending string `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, "23.75", bal.Pending)
}

func TestAdminEndpointsRequirePermission(t *testing.T) {
	srv := newTestServer(t)
	buyer := login(t, srv, "demo_buyer", "buyerpass")

	w := do(srv, http.MethodGet, "/api/v1/admin/reconciliation", buyer, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminReconciliationClean(t *testing.T) {
	srv := newTestServer(t)
	root := login(t, srv, "root", "rootpass")

	w := do(srv, http.MethodGet, "/api/v1/admin/reconciliation", root, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		UsersChecked int   `json:"usersChecked"`
		Mismatches   []any `json:"mismatches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Empty(t, res.Mismatches)
	assert.GreaterOrEqual(t, res.UsersChecked, 1)
}
