package auth

import (
	"encoding/json"
	"net/http"

	"github.com/vimarsh/guidance/internal/domain"
)

// RequireAuth rejects requests that carry no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondForbidden(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireMinRole returns middleware that rejects requests whose identity has
// a lower privilege level than min, in the super_admin > admin > user
// ordering.
func RequireMinRole(min domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := FromContext(r.Context())
			if user == nil {
				respondForbidden(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !HasMinRole(user.Role, min) {
				respondForbidden(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission returns middleware that rejects requests whose identity
// lacks the named permission.
func RequirePermission(perm domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := FromContext(r.Context())
			if user == nil {
				respondForbidden(w, http.StatusUnauthorized, "authentication required")
				return
			}
			for _, p := range user.Permissions {
				if p == perm {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondForbidden(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

func respondForbidden(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "forbidden",
		"message": message,
	})
}
