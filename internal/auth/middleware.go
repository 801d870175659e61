package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Middleware authenticates every request via AuthService and stores the
// resulting identity in the request context. Requests without a valid
// bearer token are rejected with 401.
func Middleware(svc *AuthService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := svc.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				logger.Warn("authentication failed", "error", err)
				respondUnauthorized(w, err.Error())
				return
			}

			ctx := NewContext(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
