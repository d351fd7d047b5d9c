package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name          string
		origins       []string
		requestOrigin string
		method        string
		wantStatus    int
		wantHeader    string
	}{
		{"no origins configured", nil, "https://dash.example.com", http.MethodGet, http.StatusOK, ""},
		{"allowed origin", []string{"https://dash.example.com"}, "https://dash.example.com", http.MethodGet, http.StatusOK, "https://dash.example.com"},
		{"case insensitive", []string{"HTTPS://DASH.EXAMPLE.COM"}, "https://dash.example.com", http.MethodGet, http.StatusOK, "https://dash.example.com"},
		{"disallowed preflight", []string{"https://dash.example.com"}, "https://evil.com", http.MethodOptions, http.StatusForbidden, ""},
		{"allowed preflight", []string{"https://dash.example.com"}, "https://dash.example.com", http.MethodOptions, http.StatusNoContent, "https://dash.example.com"},
		{"wildcard subdomain", []string{"*.example.com"}, "https://staging.example.com", http.MethodGet, http.StatusOK, "https://staging.example.com"},
		{"wildcard does not match lookalike", []string{"*.example.com"}, "https://notexample.com", http.MethodGet, http.StatusOK, ""},
		{"wildcard does not match apex", []string{"*.example.com"}, "https://example.com", http.MethodGet, http.StatusOK, ""},
		{"no origin header", []string{"https://dash.example.com"}, "", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			handler := CORS(DefaultCORSConfig(tt.origins))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/summary", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestCORS_PreflightHeaders(t *testing.T) {
	handler := CORS(DefaultCORSConfig([]string{"https://dash.example.com"}))(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/settings", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	for _, h := range []string{"Access-Control-Allow-Methods", "Access-Control-Allow-Headers", "Access-Control-Max-Age"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("%s not set on preflight", h)
		}
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Access-Control-Max-Age = %q, want 86400", got)
	}
}
