package middleware

import (
	"net/http"
	"strings"

	"jobtrackr/backend/internal/security"
	"jobtrackr/backend/internal/server/httpx"
)

const bearerPrefix = "bearer "

// SessionValidator validates a session token and returns its session and user ids.
// Implemented by *security.TokenProvider.
type SessionValidator interface {
	ValidateSession(token string) (sessionID, userID string, err error)
}

var _ SessionValidator = (*security.TokenProvider)(nil)

// RequireAuth validates the session token from the Authorization: Bearer header, or else
// the session cookie, and sets user_id and session_id in the request context.
// Requests without a valid session get 401 {"error":"unauthorized"}.
func RequireAuth(tokens SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				token = httpx.Value(r, httpx.CookieSession)
			}
			if token == "" {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
				return
			}
			sessionID, userID, err := tokens.ValidateSession(token)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, sessionID)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
