package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurity(t *testing.T) {
	tests := []struct {
		name   string
		isDev  bool
		header string
		want   string
	}{
		{"nosniff", false, "X-Content-Type-Options", "nosniff"},
		{"frame options", false, "X-Frame-Options", "DENY"},
		{"csp", false, "Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"no store", false, "Cache-Control", "no-store"},
		{"hsts in production", false, "Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
		{"no hsts in development", true, "Strict-Transport-Security", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			handler := Security(tt.isDev)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))

			if got := rec.Header().Get(tt.header); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	var readErr error
	handler := MaxBodySize(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	t.Run("declared oversize", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(strings.Repeat("x", 32)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "PAYLOAD_TOO_LARGE") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("undeclared oversize", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(strings.Repeat("x", 32)))
		req.ContentLength = -1
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if readErr == nil {
			t.Error("reading past the limit should fail")
		}
	})

	t.Run("within limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || readErr != nil {
			t.Errorf("status = %d, err = %v", rec.Code, readErr)
		}
	})
}
