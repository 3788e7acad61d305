// Package httpx holds the JSON and cookie conventions shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// MaxBodyBytes caps request bodies; WebAuthn responses are a few KiB.
const MaxBodyBytes = 64 << 10

// Client-visible error codes. Specific failure reasons are never returned.
const (
	ErrCodeVerificationFailed    = "verification_failed"
	ErrCodeInvalidMasterPassword = "invalid_master_password"
	ErrCodeInvalidRequest        = "invalid_request"
	ErrCodeUnauthorized          = "unauthorized"
	ErrCodeNotFound              = "not_found"
	ErrCodeRateLimited           = "rate_limited"
	ErrCodeInternal              = "internal_error"
)

// ErrBodyTooLarge is returned by ReadBody when the body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v with status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": errCode} with status code.
func WriteError(w http.ResponseWriter, code int, errCode string) {
	WriteJSON(w, code, ErrorResponse{Error: errCode})
}

// ReadBody reads at most MaxBodyBytes of the request body.
func ReadBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}

// DecodeJSON decodes the request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	b, err := ReadBody(r)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}
