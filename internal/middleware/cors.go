package middleware

import (
	"net/http"
	"path"
	"strconv"
	"strings"
)

// CORSConfig configures Cross-Origin Resource Sharing (CORS) policies.
// AllowedOrigins entries are exact origins, "*", or path.Match patterns such
// as "https://*.example.com".
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	// Browsers need Authorization for bearer tokens and the request id to
	// correlate with server logs.
	defaultCORSHeaders = []string{"Content-Type", "Authorization", RequestIDHeader}
)

type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	patterns []string
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: make(map[string]struct{})}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		switch {
		case origin == "":
		case origin == "*":
			m.any = true
		case strings.ContainsAny(origin, "*?["):
			m.patterns = append(m.patterns, origin)
		default:
			m.exact[origin] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	if m.any {
		return true
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, p := range m.patterns {
		if ok, _ := path.Match(p, origin); ok {
			return true
		}
	}
	return false
}

func joinOrDefault(values, fallback []string) string {
	if len(values) == 0 {
		values = fallback
	}
	return strings.Join(values, ", ")
}

// CORSMiddleware adds CORS headers and answers preflight requests. Preflights
// from origins that are not allowed get 403 and never reach the GraphQL
// handler.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	origins := newOriginMatcher(cfg.AllowedOrigins)
	methodsHeader := joinOrDefault(cfg.AllowedMethods, defaultCORSMethods)
	headersHeader := joinOrDefault(cfg.AllowedHeaders, defaultCORSHeaders)
	exposeHeader := strings.Join(cfg.ExposeHeaders, ", ")
	maxAgeHeader := ""
	if cfg.MaxAge > 0 {
		maxAgeHeader = strconv.Itoa(cfg.MaxAge)
	}
	// Credentials cannot be combined with a literal "*" origin.
	echoOrigin := !origins.any || cfg.AllowCredentials

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			allowed := origins.allows(origin)
			if allowed {
				if echoOrigin {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				} else {
					h.Set("Access-Control-Allow-Origin", "*")
				}
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if exposeHeader != "" {
					h.Set("Access-Control-Expose-Headers", exposeHeader)
				}
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			h.Set("Access-Control-Allow-Methods", methodsHeader)
			h.Set("Access-Control-Allow-Headers", headersHeader)
			if maxAgeHeader != "" {
				h.Set("Access-Control-Max-Age", maxAgeHeader)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
