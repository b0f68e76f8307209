package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/serene/internal/auth"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(raw string) (auth.AuthContext, error)
}

// RequireAuth validates the bearer token and populates AuthContext. The
// token is read from the Authorization header, or from the "token" query
// parameter for clients such as browser WebSockets that cannot set headers.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			ac, err := verifier.Verify(raw)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}

			setLoggedUser(r.Context(), ac.UserID)
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the raw token from the request.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="serene"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
