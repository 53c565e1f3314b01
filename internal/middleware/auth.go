package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/store"
)

// RequireSession validates the bearer credential and populates AuthContext.
// Validation slides the session's expiry as a side effect.
func RequireSession(sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthenticated(w)
				return
			}

			sess, err := sessions.Validate(r.Context(), token)
			if err != nil || sess == nil {
				unauthenticated(w)
				return
			}

			ac := auth.AuthContext{
				UserID:        sess.UserID,
				SessionID:     sess.ID,
				TwoFAVerified: sess.TwoFAVerified,
			}
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func unauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
}
