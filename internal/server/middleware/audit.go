package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"jobtrackr/backend/internal/audit"
)

// Audit records an audit log entry after each state-changing request (POST, PUT, PATCH, DELETE)
// made by an authenticated user. Action and resource come from the matched chi route pattern.
// Best-effort: the audit logger never fails the request.
func Audit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return
			}
			userID, ok := GetUserID(r.Context())
			if !ok {
				return
			}
			pattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					pattern = p
				}
			}
			ar := audit.ParseRoute(r.Method, pattern)
			logger.LogEvent(r.Context(), userID, ar.Action, ar.Resource, fmt.Sprintf("status=%d", statusOf(ww)))
		})
	}
}

func statusOf(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
