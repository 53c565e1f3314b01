package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/evharlow/astrid/internal/auth"
	"github.com/evharlow/astrid/internal/store"
)

// RequireConsent blocks the request unless the caller has granted the given
// consent type. The decision is attached to the context for audit logging.
// Runs after RequireSession; a missing AuthContext is treated as
// unauthenticated rather than forbidden.
func RequireConsent(consents *store.ConsentStore, consentType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserID(r.Context())
			if userID == "" {
				unauthenticated(w)
				return
			}

			c, err := consents.Get(r.Context(), userID)
			if err != nil {
				storeFailure(w)
				return
			}
			if !c.Has(consentType) {
				consentRequired(w, consentType)
				return
			}

			ctx := auth.WithConsentDecision(r.Context(), consentType)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAnyConsent is the coarser checkpoint: it blocks only when the user
// has no consent row at all.
func RequireAnyConsent(consents *store.ConsentStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserID(r.Context())
			if userID == "" {
				unauthenticated(w)
				return
			}

			c, err := consents.Get(r.Context(), userID)
			if err != nil {
				storeFailure(w)
				return
			}
			if c == nil {
				consentRequired(w, "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// storeFailure reports a consent lookup that could not complete. A database
// error is not a consent decision; it must not read as a denial.
func storeFailure(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "consent_check_failed"})
}

func consentRequired(w http.ResponseWriter, consentType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	body := map[string]string{"error": "consent_required"}
	if consentType != "" {
		body["consentType"] = consentType
	}
	json.NewEncoder(w).Encode(body)
}
