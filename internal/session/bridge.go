// Package session turns a verified authentication ceremony into an application session.
package session

import (
	"errors"
	"net/http"
	"time"

	"jobtrackr/backend/internal/server/httpx"
	"jobtrackr/backend/internal/session/domain"
)

// ErrMissingUser is returned when Issue is called without a user id.
var ErrMissingUser = errors.New("session: user id required")

// TokenIssuer issues session tokens. Implemented by *security.TokenProvider.
type TokenIssuer interface {
	IssueSession(userID, credentialID string) (token, sessionID string, expiresAt time.Time, err error)
}

// Bridge issues session tokens and writes the session cookie.
type Bridge struct {
	tokens  TokenIssuer
	cookies httpx.Cookies
	now     func() time.Time
}

// NewBridge returns a Bridge. cookies controls the Secure attribute of the session cookie.
func NewBridge(tokens TokenIssuer, cookies httpx.Cookies) *Bridge {
	return &Bridge{tokens: tokens, cookies: cookies, now: time.Now}
}

// Issue issues a session for userID, authenticated with credentialID, and sets the session cookie on w.
// The token is also returned so API clients can use it as a Bearer token.
func (b *Bridge) Issue(w http.ResponseWriter, userID, credentialID string) (*domain.Session, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	token, sessionID, expiresAt, err := b.tokens.IssueSession(userID, credentialID)
	if err != nil {
		return nil, err
	}
	if w != nil {
		b.cookies.Set(w, httpx.CookieSession, token, expiresAt.Sub(b.now()))
	}
	return &domain.Session{
		ID:           sessionID,
		UserID:       userID,
		CredentialID: credentialID,
		Token:        token,
		ExpiresAt:    expiresAt,
	}, nil
}

// End clears the session cookie and the master-password unlock cookie bound to it.
// Tokens are stateless and expire on their own.
func (b *Bridge) End(w http.ResponseWriter) {
	b.cookies.Clear(w, httpx.CookieSession)
	b.cookies.Clear(w, httpx.CookieMasterVerified)
}
