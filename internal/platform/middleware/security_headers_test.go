package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newSecuredEcho() *echo.Echo {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.POST("/api/v1/auth/login", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"token": "tok", "role": "patient"})
	})
	e.GET("/api/v1/auth/me", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	})
	return e
}

func TestSecurityHeaders_AuthResponses(t *testing.T) {
	e := newSecuredEcho()
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"token issued", http.MethodPost, "/api/v1/auth/login", http.StatusOK},
		{"handler error", http.MethodGet, "/api/v1/auth/me", http.StatusUnauthorized},
		{"unknown route", http.MethodGet, "/api/v1/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			// Tokens and patient records must never land in a shared cache.
			if got := rec.Header().Get("Cache-Control"); got != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", got)
			}
			if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
			}
			for header, want := range securityHeaders {
				if got := rec.Header().Get(header); got != want {
					t.Errorf("%s = %q, want %q", header, got, want)
				}
			}
		})
	}
}

func TestSecurityHeaders_DenyFramingAndResources(t *testing.T) {
	rec := httptest.NewRecorder()
	newSecuredEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	for _, directive := range []string{"default-src 'none'", "frame-ancestors 'none'"} {
		if !strings.Contains(csp, directive) {
			t.Errorf("Content-Security-Policy %q lacks %q", csp, directive)
		}
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got != "no-referrer" {
		t.Errorf("Referrer-Policy = %q, want no-referrer", got)
	}
}
