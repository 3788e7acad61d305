package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type statusResponse struct {
	Status string `json:"status"`
}

// HTTPHandler serves GET /healthz: 200 {"status":"ok"} or 503 {"status":"unavailable"}.
// The failing dependency is logged, not returned.
func HTTPHandler(c *Checker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, body := http.StatusOK, statusResponse{Status: "ok"}
		if err := c.Check(r.Context()); err != nil {
			logger.WarnContext(r.Context(), "health check failed", "error", err)
			code, body = http.StatusServiceUnavailable, statusResponse{Status: "unavailable"}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
