package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"jobtrackr/backend/internal/audit"
	"jobtrackr/backend/internal/credential"
	creddomain "jobtrackr/backend/internal/credential/domain"
	"jobtrackr/backend/internal/server/httpx"
	"jobtrackr/backend/internal/server/middleware"
	sessdomain "jobtrackr/backend/internal/session/domain"
	"jobtrackr/backend/internal/telemetry"
	userdomain "jobtrackr/backend/internal/user/domain"
)

const eventSource = "ceremony"

// CredentialManager lists and deletes a user's credentials.
type CredentialManager interface {
	ListForUser(ctx context.Context, userID string) ([]*creddomain.Credential, error)
	Delete(ctx context.Context, id []byte, requestingUserID string) error
}

// UserLookup resolves user ids for display names and user summaries. A nil user means unknown.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// SessionIssuer starts an application session after a verified authentication and ends it on logout.
type SessionIssuer interface {
	Issue(w http.ResponseWriter, userID, credentialID string) (*sessdomain.Session, error)
	End(w http.ResponseWriter)
}

// Handler serves the passkey HTTP endpoints.
type Handler struct {
	engine       *Engine
	credentials  CredentialManager
	users        UserLookup
	sessions     SessionIssuer
	cookies      httpx.Cookies
	challengeTTL time.Duration

	logger  *slog.Logger
	audit   audit.AuditLogger
	events  telemetry.EventEmitter
	metrics *telemetry.Metrics
}

// NewHandler returns a Handler. challengeTTL is the lifetime of the challenge cookies.
func NewHandler(engine *Engine, credentials CredentialManager, users UserLookup, sessions SessionIssuer, cookies httpx.Cookies, challengeTTL time.Duration) *Handler {
	return &Handler{
		engine:       engine,
		credentials:  credentials,
		users:        users,
		sessions:     sessions,
		cookies:      cookies,
		challengeTTL: challengeTTL,
		logger:       slog.Default(),
		audit:        audit.NopLogger{},
	}
}

// WithLogger sets the logger.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithAudit sets the audit logger used for public authentication attempts.
func (h *Handler) WithAudit(logger audit.AuditLogger) *Handler {
	if logger != nil {
		h.audit = logger
	}
	return h
}

// WithTelemetry sets the security event emitter and metric instruments. Either may be nil.
func (h *Handler) WithTelemetry(events telemetry.EventEmitter, metrics *telemetry.Metrics) *Handler {
	h.events = events
	h.metrics = metrics
	return h
}

type authenticationOptionsRequest struct {
	UserID string `json:"userId"`
}

// RegistrationVerifyResponse is returned by a verified registration.
type RegistrationVerifyResponse struct {
	Verified     bool   `json:"verified"`
	CredentialID string `json:"credentialId"`
}

// AuthenticationVerifyResponse is returned by a verified authentication.
type AuthenticationVerifyResponse struct {
	Verified    bool               `json:"verified"`
	UserID      string             `json:"userId"`
	UserSummary userdomain.Summary `json:"userSummary"`
}

// RegistrationOptions handles POST /registration/options for the signed-in user.
func (h *Handler) RegistrationOptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
		return
	}
	displayName := userID
	if h.users != nil {
		u, err := h.users.GetByID(r.Context(), userID)
		if err != nil {
			h.internalError(w, r, "registration options: get user", err)
			return
		}
		if u != nil {
			displayName = u.Label()
		}
	}

	opts, err := h.engine.BeginRegistration(r.Context(), userID, displayName)
	if err != nil {
		h.internalError(w, r, "registration options", err)
		return
	}
	h.cookies.Set(w, httpx.CookieRegistrationChallenge, opts.Handle, h.cookieTTL(opts.ExpiresAt))
	httpx.WriteJSON(w, http.StatusOK, opts.Options)
}

// RegistrationVerify handles POST /registration/verify. The optional ?name= query names the passkey.
func (h *Handler) RegistrationVerify(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
		return
	}
	handle := httpx.Value(r, httpx.CookieRegistrationChallenge)
	h.cookies.Clear(w, httpx.CookieRegistrationChallenge)

	body, err := httpx.ReadBody(r)
	if err != nil {
		// The challenge is still consumed; an unreadable body verifies as malformed.
		body = nil
	}
	res, err := h.engine.FinishRegistration(r.Context(), handle, userID, body, r.URL.Query().Get("name"))
	if err != nil {
		h.finishFailed(w, r, "registration", userID, "", err)
		return
	}

	credID := res.Credential.EncodedID()
	h.metrics.RecordCeremony(r.Context(), "registration", string(res.State), "")
	telemetry.EmitAsync(h.events, r.Context(), &telemetry.Event{
		UserID:       userID,
		CredentialID: credID,
		EventType:    telemetry.EventRegistrationVerified,
		Source:       eventSource,
		Metadata:     metadata(map[string]string{"device_type": string(res.Credential.DeviceType)}),
	})
	h.logger.InfoContext(r.Context(), "passkey registered", "user_id", userID, "credential_id", credID)
	httpx.WriteJSON(w, http.StatusOK, RegistrationVerifyResponse{Verified: true, CredentialID: credID})
}

// AuthenticationOptions handles POST /authentication/options. The body may name a user to scope the challenge.
func (h *Handler) AuthenticationOptions(w http.ResponseWriter, r *http.Request) {
	var req authenticationOptionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrCodeInvalidRequest)
		return
	}
	opts, err := h.engine.BeginAuthentication(r.Context(), req.UserID)
	if err != nil {
		h.internalError(w, r, "authentication options", err)
		return
	}
	h.cookies.Set(w, httpx.CookieAuthenticationChallenge, opts.Handle, h.cookieTTL(opts.ExpiresAt))
	httpx.WriteJSON(w, http.StatusOK, opts.Options)
}

// AuthenticationVerify handles POST /authentication/verify and starts a session on success.
func (h *Handler) AuthenticationVerify(w http.ResponseWriter, r *http.Request) {
	handle := httpx.Value(r, httpx.CookieAuthenticationChallenge)
	h.cookies.Clear(w, httpx.CookieAuthenticationChallenge)

	body, err := httpx.ReadBody(r)
	if err != nil {
		body = nil
	}
	res, err := h.engine.FinishAuthentication(r.Context(), handle, body)
	if err != nil {
		var owner, credID string
		if res != nil && res.Credential != nil {
			owner, credID = res.UserID, res.Credential.EncodedID()
		}
		h.finishFailed(w, r, "authentication", owner, credID, err)
		meta := "reason=" + Reason(err)
		if credID != "" {
			meta += " credential=" + credID
		}
		h.audit.LogEvent(r.Context(), owner, "verify", "authentication", meta)
		return
	}

	credID := res.Credential.EncodedID()
	summary := userdomain.Summary{ID: res.UserID}
	if h.users != nil {
		u, err := h.users.GetByID(r.Context(), res.UserID)
		if err != nil {
			h.internalError(w, r, "authentication verify: get user", err)
			return
		}
		if u != nil {
			summary = u.Summary()
		}
	}
	if h.sessions != nil {
		if _, err := h.sessions.Issue(w, res.UserID, credID); err != nil {
			h.internalError(w, r, "authentication verify: issue session", err)
			return
		}
	}

	h.metrics.RecordCeremony(r.Context(), "authentication", string(res.State), "")
	telemetry.EmitAsync(h.events, r.Context(), &telemetry.Event{
		UserID:       res.UserID,
		CredentialID: credID,
		EventType:    telemetry.EventAuthenticationVerified,
		Source:       eventSource,
	})
	h.audit.LogEvent(r.Context(), res.UserID, "verify", "authentication", "credential="+credID)
	h.logger.InfoContext(r.Context(), "passkey authentication verified", "user_id", res.UserID, "credential_id", credID)
	httpx.WriteJSON(w, http.StatusOK, AuthenticationVerifyResponse{Verified: true, UserID: res.UserID, UserSummary: summary})
}

// ListCredentials handles GET /credentials. Public keys are never returned.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
		return
	}
	creds, err := h.credentials.ListForUser(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "list credentials", err)
		return
	}
	out := make([]creddomain.Summary, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.Summary())
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// DeleteCredential handles DELETE /credentials/{id}. Credentials the caller does not own answer 404.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
		return
	}
	encoded := chi.URLParam(r, "id")
	id, err := creddomain.DecodeID(encoded)
	if err != nil || len(id) == 0 {
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrCodeNotFound)
		return
	}
	if err := h.credentials.Delete(r.Context(), id, userID); err != nil {
		if errors.Is(err, credential.ErrForbidden) {
			h.logger.WarnContext(r.Context(), "credential delete refused", "user_id", userID, "credential_id", encoded)
			httpx.WriteError(w, http.StatusNotFound, httpx.ErrCodeNotFound)
			return
		}
		h.internalError(w, r, "delete credential", err)
		return
	}
	telemetry.EmitAsync(h.events, r.Context(), &telemetry.Event{
		UserID:       userID,
		CredentialID: encoded,
		EventType:    telemetry.EventCredentialDeleted,
		Source:       eventSource,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Logout handles POST /session/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrCodeUnauthorized)
		return
	}
	h.sessions.End(w)
	h.logger.InfoContext(r.Context(), "session ended", "user_id", userID)
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// finishFailed reports a failed finish call. Rejections collapse to verification_failed; the reason
// is only logged, metriced and emitted.
// credID is set when the rejection is attributable to a stored credential.
func (h *Handler) finishFailed(w http.ResponseWriter, r *http.Request, ceremony, userID, credID string, err error) {
	if !IsRejection(err) {
		h.metrics.RecordCeremony(r.Context(), ceremony, "error", Reason(err))
		h.internalError(w, r, ceremony+" verify", err)
		return
	}
	reason := Reason(err)
	h.metrics.RecordCeremony(r.Context(), ceremony, string(StateRejected), reason)

	eventType := telemetry.EventRegistrationRejected
	if ceremony == "authentication" {
		eventType = telemetry.EventAuthenticationRejected
	}
	if errors.Is(err, ErrCounterRegression) {
		eventType = telemetry.EventCounterRegression
		h.metrics.RecordCounterRegression(r.Context())
		h.logger.ErrorContext(r.Context(), "passkey counter regression, possible cloned authenticator",
			"ceremony", ceremony, "user_id", userID, "credential_id", credID,
			"client_ip", middleware.ClientIPFromContext(r.Context()))
	} else {
		h.logger.WarnContext(r.Context(), "ceremony rejected", "ceremony", ceremony, "user_id", userID, "reason", reason)
	}
	telemetry.EmitAsync(h.events, r.Context(), &telemetry.Event{
		UserID:       userID,
		CredentialID: credID,
		EventType:    eventType,
		Source:       eventSource,
		Reason:       reason,
	})
	httpx.WriteError(w, http.StatusBadRequest, httpx.ErrCodeVerificationFailed)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, "error", err)
	httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrCodeInternal)
}

func (h *Handler) cookieTTL(expiresAt time.Time) time.Duration {
	if d := time.Until(expiresAt); d > 0 {
		return d
	}
	return h.challengeTTL
}

func metadata(m map[string]string) []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}
