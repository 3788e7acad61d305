package httpx

import (
	"net/http"
	"time"
)

// Cookie names used by the auth boundary.
const (
	CookieRegistrationChallenge   = "jt_reg_challenge"
	CookieAuthenticationChallenge = "jt_auth_challenge"
	CookieMasterVerified          = "jt_mp_verified"
	CookieSession                 = "jt_session"
)

// Cookies writes httpOnly, SameSite=Strict cookies. Secure is set in production.
type Cookies struct {
	Secure bool
}

// Set writes name=value valid for ttl.
func (c Cookies) Set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear expires name on the client.
func (c Cookies) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Value returns the named cookie's value or "".
func Value(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
