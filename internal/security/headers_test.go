package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func serve(mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/wallet", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware(t *testing.T) {
	w := serve(HeadersMiddleware(), httptest.NewRequest("GET", "/wallet", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, expected := range want {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s = %q, want %q", header, got, expected)
		}
	}

	// The CSP must still allow websocket upgrades for the realtime feed.
	csp := w.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("CSP %q does not lock down default-src", csp)
	}
	if !strings.Contains(csp, "ws:") {
		t.Errorf("CSP %q does not permit websocket connections", csp)
	}
}

func TestCORSMiddlewareOrigins(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		expectAllowed  bool
	}{
		{"allowed origin", []string{"https://app.example.com"}, "https://app.example.com", true},
		{"wildcard allows all", []string{"*"}, "https://anything.example", true},
		{"disallowed origin", []string{"https://app.example.com"}, "https://evil.example", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/wallet", nil)
			req.Header.Set("Origin", tc.requestOrigin)
			w := serve(CORSMiddleware(tc.allowedOrigins), req)

			allowed := w.Header().Get("Access-Control-Allow-Origin") != ""
			if allowed != tc.expectAllowed {
				t.Errorf("CORS header present = %v, want %v", allowed, tc.expectAllowed)
			}
		})
	}
}

func TestCORSCredentialsNeverWithWildcard(t *testing.T) {
	req := httptest.NewRequest("GET", "/wallet", nil)
	req.Header.Set("Origin", "https://anything.example")
	w := serve(CORSMiddleware([]string{"*"}), req)

	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials header set alongside wildcard origin")
	}

	req = httptest.NewRequest("GET", "/wallet", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = serve(CORSMiddleware([]string{"https://app.example.com"}), req)

	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials header missing for pinned origin")
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/wallet", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := serve(CORSMiddleware([]string{"*"}), req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Access-Control-Allow-Methods not set")
	}
}
