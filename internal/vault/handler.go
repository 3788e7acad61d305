package vault

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"jobtrackr/backend/internal/server/httpx"
	"jobtrackr/backend/internal/server/middleware"
	"jobtrackr/backend/internal/telemetry"
)

const eventSource = "vault"

// MasterVerifiedTokens issues and checks the master-password-verified token. Implemented by *security.TokenProvider.
type MasterVerifiedTokens interface {
	IssueMasterVerified(userID string, ttl time.Duration) (token string, expiresAt time.Time, err error)
	ValidateMasterVerified(token string) (userID string, err error)
}

// MasterPasswords is the part of Service used by the HTTP handler.
type MasterPasswords interface {
	Setup(ctx context.Context, userID, password string, policy Policy) error
	Verify(ctx context.Context, userID, password string) (bool, error)
	Configured(ctx context.Context, userID string) (bool, error)
}

var _ MasterPasswords = (*Service)(nil)

// Handler serves the master-password endpoints. All routes require a signed-in user.
type Handler struct {
	vault       MasterPasswords
	tokens      MasterVerifiedTokens
	cookies     httpx.Cookies
	verifiedTTL time.Duration
	logger      *slog.Logger
	events      telemetry.EventEmitter
}

// NewHandler returns a Handler. verifiedTTL is how long a successful verify stays valid.
func NewHandler(vault MasterPasswords, tokens MasterVerifiedTokens, cookies httpx.Cookies, verifiedTTL time.Duration) *Handler {
	return &Handler{vault: vault, tokens: tokens, cookies: cookies, verifiedTTL: verifiedTTL, logger: slog.Default()}
}

// WithLogger sets the logger.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithEvents sets the security event emitter.
func (h *Handler) WithEvents(events telemetry.EventEmitter) *Handler {
	h.events = events
	return h
}

type masterPasswordRequest struct {
	MasterPassword  string  `json:"masterPassword"`
	ConfirmPassword *string `json:"confirmPassword,omitempty"`
}

// StatusResponse is returned by GET /master-password/status.
type StatusResponse struct {
	Configured bool `json:"configured"`
	Verified   bool `json:"verified"`
}

// Setup handles POST /master-password/setup. The boundary enforces the 8-character policy;
// onboarding flows that need the stricter policy call Service.Setup with PolicyInitialSetup.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
		return
	}
	var req masterPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrCodeInvalidRequest)
		return
	}
	if req.ConfirmPassword != nil {
		if err := ConfirmPassword(req.MasterPassword, *req.ConfirmPassword); err != nil {
			h.logger.InfoContext(r.Context(), "master password setup refused", "user_id", userID, "reason", "confirmation_mismatch")
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrCodeInvalidMasterPassword)
			return
		}
	}
	if err := h.vault.Setup(r.Context(), userID, req.MasterPassword, PolicyChange); err != nil {
		if errors.Is(err, ErrWeakPassword) {
			h.logger.InfoContext(r.Context(), "master password setup refused", "user_id", userID, "reason", "weak_password")
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrCodeInvalidMasterPassword)
			return
		}
		h.internalError(w, r, "master password setup", err)
		return
	}
	telemetry.EmitAsync(h.events, r.Context(), &telemetry.Event{
		UserID:    userID,
		EventType: telemetry.EventMasterPasswordSetup,
		Source:    eventSource,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Verify handles POST /master-password/verify. On success it sets the master-verified cookie.
// Wrong passwords and users without a master password get the same answer.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
		return
	}
	var req masterPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrCodeInvalidRequest)
		return
	}
	ok, err := h.vault.Verify(r.Context(), userID, req.MasterPassword)
	if err != nil && !errors.Is(err, ErrNoMasterPasswordConfigured) {
		h.internalError(w, r, "master password verify", err)
		return
	}
	if !ok {
		reason := "password_mismatch"
		if err != nil {
			reason = "not_configured"
		}
		h.logger.WarnContext(r.Context(), "master password verification failed", "user_id", userID, "reason", reason)
		telemetry.EmitAsync(h.events, r.Context(), &telemetry.Event{
			UserID:    userID,
			EventType: telemetry.EventMasterPasswordRejected,
			Source:    eventSource,
			Reason:    reason,
		})
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrCodeInvalidMasterPassword)
		return
	}

	token, expiresAt, err := h.tokens.IssueMasterVerified(userID, h.verifiedTTL)
	if err != nil {
		h.internalError(w, r, "master password verify: issue token", err)
		return
	}
	h.cookies.Set(w, httpx.CookieMasterVerified, token, time.Until(expiresAt))
	telemetry.EmitAsync(h.events, r.Context(), &telemetry.Event{
		UserID:    userID,
		EventType: telemetry.EventMasterPasswordVerified,
		Source:    eventSource,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Status handles GET /master-password/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
		return
	}
	configured, err := h.vault.Configured(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "master password status", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, StatusResponse{Configured: configured, Verified: configured && h.MasterVerified(r, userID)})
}

// MasterVerified reports whether r carries a valid master-verified cookie for userID.
func (h *Handler) MasterVerified(r *http.Request, userID string) bool {
	token := httpx.Value(r, httpx.CookieMasterVerified)
	if token == "" {
		return false
	}
	subject, err := h.tokens.ValidateMasterVerified(token)
	return err == nil && subject == userID
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "error", err)
	httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrCodeInternal)
}
