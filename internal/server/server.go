// Package server assembles the HTTP router and gRPC services of the auth core.
package server

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"jobtrackr/backend/internal/audit"
	"jobtrackr/backend/internal/ceremony"
	"jobtrackr/backend/internal/health"
	"jobtrackr/backend/internal/server/httpx"
	"jobtrackr/backend/internal/server/middleware"
	"jobtrackr/backend/internal/vault"
)

// Deps holds the handlers and shared components mounted by NewRouter and RegisterServices.
type Deps struct {
	// Ceremony serves the passkey endpoints. If nil, they are not mounted.
	Ceremony *ceremony.Handler
	// Vault serves the master-password endpoints. If nil, they are not mounted.
	Vault *vault.Handler
	// Tokens validates session tokens on authenticated routes. Required when Ceremony or Vault is set.
	Tokens middleware.SessionValidator
	// Audit records state-changing authenticated requests. If nil, nothing is audited.
	Audit audit.AuditLogger
	// RateLimiter guards the verify endpoints. A nil limiter allows everything.
	RateLimiter *middleware.RateLimiter
	// Metrics records request metrics and serves GET /metrics. If nil, both are skipped.
	Metrics *middleware.HTTPMetrics
	// Health backs GET /healthz and the gRPC health service. If nil, /healthz is not mounted.
	Health *health.Checker
	// TrustedProxies are the proxy networks whose X-Forwarded-For is believed when resolving
	// the client IP for rate limiting and audit. Empty uses the remote address.
	TrustedProxies []netip.Prefix
	// CORSOrigins enables CORS for the listed origins. Empty disables CORS.
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter returns the HTTP API.
//
// Public:        POST /authentication/options, POST /authentication/verify, GET /healthz, GET /metrics
// Authenticated: POST /registration/options, POST /registration/verify, GET /credentials,
// DELETE /credentials/{id}, POST /session/logout, POST /master-password/setup, POST /master-password/verify,
// GET /master-password/status
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewClientIPResolver(deps.TrustedProxies).Middleware)
	r.Use(chimw.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrCodeNotFound)
	})

	if deps.Health != nil {
		r.Get("/healthz", health.HTTPHandler(deps.Health, logger))
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	limited := middleware.RateLimit(deps.RateLimiter)

	if deps.Ceremony != nil {
		r.Post("/authentication/options", deps.Ceremony.AuthenticationOptions)
		r.With(limited).Post("/authentication/verify", deps.Ceremony.AuthenticationVerify)
	}

	if deps.Ceremony == nil && deps.Vault == nil {
		return r
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Tokens))
		r.Use(middleware.Audit(auditLogger))

		if deps.Ceremony != nil {
			r.Post("/registration/options", deps.Ceremony.RegistrationOptions)
			r.With(limited).Post("/registration/verify", deps.Ceremony.RegistrationVerify)
			r.Get("/credentials", deps.Ceremony.ListCredentials)
			r.Delete("/credentials/{id}", deps.Ceremony.DeleteCredential)
			r.Post("/session/logout", deps.Ceremony.Logout)
		}
		if deps.Vault != nil {
			r.Route("/master-password", func(r chi.Router) {
				r.Post("/setup", deps.Vault.Setup)
				r.With(limited).Post("/verify", deps.Vault.Verify)
				r.Get("/status", deps.Vault.Status)
			})
		}
	})
	return r
}
