package middleware

import (
	"net/http"
	"strconv"

	"github.com/straye-as/blob-processor/internal/config"
)

// SecurityHeaders returns a middleware that adds the response headers a
// machine-to-machine webhook needs. Browser-only headers are left out.
func SecurityHeaders(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	var hsts string
	if cfg.EnableHSTS && cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.ContentTypeNosniff {
				w.Header().Set("X-Content-Type-Options", "nosniff")
			}

			// Handshake codes and delivery summaries must not be served from a cache
			if cfg.NoStore {
				w.Header().Set("Cache-Control", "no-store")
			}

			if hsts != "" {
				w.Header().Set("Strict-Transport-Security", hsts)
			}

			next.ServeHTTP(w, r)
		})
	}
}
