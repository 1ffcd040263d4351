package auth

import (
	"net/http"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/httpserver"
)

// RequireAdmin must sit behind RequireUser. Anonymous requests get 401 and
// signed-in non-admins get 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		if _, ok := UserIDFromContext(r.Context()); !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}
		if !IsAdmin(r.Context()) {
			api.Forbidden(w, "FORBIDDEN", "admin role required", rid)
			return
		}
		next.ServeHTTP(w, r)
	})
}
