package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		cfg         CORSConfig
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantHeaders map[string]string
		wantCalled  bool
	}{
		{
			name:        "disabled",
			cfg:         CORSConfig{AllowedOrigins: []string{"*"}},
			method:      http.MethodGet,
			origin:      "http://example.com",
			wantStatus:  http.StatusOK,
			wantHeaders: map[string]string{"Access-Control-Allow-Origin": ""},
			wantCalled:  true,
		},
		{
			name:       "allowed origin",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}},
			method:     http.MethodPost,
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin": "http://localhost:3000",
				"Vary":                        "Origin",
			},
			wantCalled: true,
		},
		{
			name:        "disallowed origin still reaches the handler",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}},
			method:      http.MethodPost,
			origin:      "http://malicious.com",
			wantStatus:  http.StatusOK,
			wantHeaders: map[string]string{"Access-Control-Allow-Origin": ""},
			wantCalled:  true,
		},
		{
			name:       "pattern origin",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"https://*.example.com"}},
			method:     http.MethodPost,
			origin:     "https://admin.example.com",
			wantStatus: http.StatusOK,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin": "https://admin.example.com",
			},
			wantCalled: true,
		},
		{
			name:        "pattern does not cross the scheme",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"https://*.example.com"}},
			method:      http.MethodPost,
			origin:      "http://admin.example.com",
			wantStatus:  http.StatusOK,
			wantHeaders: map[string]string{"Access-Control-Allow-Origin": ""},
			wantCalled:  true,
		},
		{
			name:       "wildcard",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     "http://any-origin.com",
			wantStatus: http.StatusOK,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin": "*",
				"Vary":                        "",
			},
			wantCalled: true,
		},
		{
			name:       "wildcard with credentials echoes the origin",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true},
			method:     http.MethodGet,
			origin:     "http://app.local",
			wantStatus: http.StatusOK,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":      "http://app.local",
				"Access-Control-Allow-Credentials": "true",
			},
			wantCalled: true,
		},
		{
			name: "expose headers",
			cfg: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000"},
				ExposeHeaders:  []string{RequestIDHeader, "X-Custom-Header"},
			},
			method:     http.MethodGet,
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantHeaders: map[string]string{
				"Access-Control-Expose-Headers": "X-Request-ID, X-Custom-Header",
			},
			wantCalled: true,
		},
		{
			name: "preflight",
			cfg: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"http://localhost:3000"},
				AllowedMethods: []string{"GET", "POST"},
				MaxAge:         3600,
			},
			method:     http.MethodOptions,
			origin:     "http://localhost:3000",
			preflight:  true,
			wantStatus: http.StatusNoContent,
			wantHeaders: map[string]string{
				"Access-Control-Allow-Origin":  "http://localhost:3000",
				"Access-Control-Allow-Methods": "GET, POST",
				"Access-Control-Allow-Headers": "Content-Type, Authorization, X-Request-ID",
				"Access-Control-Max-Age":       "3600",
			},
		},
		{
			name:        "disallowed preflight",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}},
			method:      http.MethodOptions,
			origin:      "http://malicious.com",
			preflight:   true,
			wantStatus:  http.StatusForbidden,
			wantHeaders: map[string]string{"Access-Control-Allow-Methods": ""},
		},
		{
			name:       "options without preflight header is passed on",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:     http.MethodOptions,
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:        "no origin",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}},
			method:      http.MethodGet,
			wantStatus:  http.StatusOK,
			wantHeaders: map[string]string{"Access-Control-Allow-Origin": ""},
			wantCalled:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := CORSMiddleware(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/graphql", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, called)
			for name, want := range tt.wantHeaders {
				assert.Equal(t, want, rr.Header().Get(name), name)
			}
		})
	}
}
