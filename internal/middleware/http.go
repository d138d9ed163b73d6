package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type SecurityHeadersConfig struct {
	ContentSecurityPolicy string
	// HSTSMaxAge enables Strict-Transport-Security when positive.
	HSTSMaxAge time.Duration
	// NoStore marks every response uncacheable.
	NoStore bool
}

// Chain wraps handler so the first middleware listed runs first.
func Chain(handler http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// CSP joins policy directives into one header value.
func CSP(directives ...string) string {
	return strings.Join(directives, "; ")
}

func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(config.HSTSMaxAge/time.Second), 10) + "; includeSubDomains"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			if config.ContentSecurityPolicy != "" {
				h.Set("Content-Security-Policy", config.ContentSecurityPolicy)
			}
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			if config.NoStore {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
