/**
 * @description
 * HTTP middleware for the camfinder server. The only custom middleware is the
 * admin gate check applied to the /admin route group: it extracts the caller
 * credential and rejects the request before any admin handler runs.
 */
package api

import (
	"net/http"
	"strings"

	"github.com/ivanod1994/camfinder-server/internal/auth"
)

// AdminAuth creates a middleware that denies requests whose credential the
// gate does not recognize as an administrator.
func AdminAuth(gate auth.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gate.IsAdmin(adminCredential(r)) {
				writeError(w, http.StatusForbidden, "admin authorization required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// adminCredential extracts the admin credential from the request: an
// Authorization bearer token, or the `key` query parameter for callers that
// cannot set headers (the original deployment used a query password).
func adminCredential(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
			return token
		}
	}
	return r.URL.Query().Get("key")
}
