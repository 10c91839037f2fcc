package util

import (
	"net/http"
	"strings"
)

// WithCORS restricts cross-origin access to the configured browser origin.
// An empty origin disables CORS headers entirely.
func WithCORS(origin string, next http.Handler) http.Handler {
	origin = strings.TrimSpace(origin)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
