// Package http pkg/http/middleware.go
package http

import (
	"net/http"
	"time"

	"github.com/carverauto/modbus-poller/pkg/logger"
)

// OriginAllowed reports whether origin matches the allow list. An empty
// origin (non-browser client) is always allowed; "*" allows everything.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}

	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}

	return false
}

// CommonMiddleware logs each request and sets CORS headers for allowed
// origins.
func CommonMiddleware(next http.Handler, allowedOrigins []string, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		origin := r.Header.Get("Origin")

		if origin != "" && OriginAllowed(allowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "3600") // Cache preflight for 1 hour
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)

		log.Debug().
			Str("remote_addr", r.RemoteAddr).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
