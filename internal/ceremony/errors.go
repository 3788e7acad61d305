package ceremony

import (
	"errors"

	"jobtrackr/backend/internal/challenge"
	"jobtrackr/backend/internal/credential"
)

// Rejection reasons. Each one ends the ceremony in StateRejected; the boundary reports all of
// them to the client as a generic verification failure.
var (
	ErrChallengeExpiredOrMissing = challenge.ErrChallengeNotFound
	ErrTypeMismatch              = errors.New("client data type mismatch")
	ErrChallengeMismatch         = errors.New("challenge mismatch")
	ErrOriginMismatch            = errors.New("origin mismatch")
	ErrUnknownCredential         = errors.New("unknown credential")
	ErrDuplicateCredential       = credential.ErrDuplicateCredential
	ErrCounterRegression         = credential.ErrCounterRegression
	ErrMalformedResponse         = errors.New("malformed credential response")
	ErrRPIDMismatch              = errors.New("relying party id hash mismatch")
	ErrSignatureInvalid          = errors.New("assertion signature invalid")
	ErrPolicyDenied              = errors.New("authenticator rejected by policy")
)

var rejections = []error{
	ErrChallengeExpiredOrMissing,
	ErrTypeMismatch,
	ErrChallengeMismatch,
	ErrOriginMismatch,
	ErrUnknownCredential,
	ErrDuplicateCredential,
	ErrCounterRegression,
	ErrMalformedResponse,
	ErrRPIDMismatch,
	ErrSignatureInvalid,
	ErrPolicyDenied,
}

// IsRejection reports whether err is a ceremony rejection rather than an internal failure.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// Reason returns a stable metric/log label for a rejection, or "internal" for any other error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrChallengeExpiredOrMissing):
		return "challenge_expired_or_missing"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, ErrOriginMismatch):
		return "origin_mismatch"
	case errors.Is(err, ErrUnknownCredential):
		return "unknown_credential"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	case errors.Is(err, ErrCounterRegression):
		return "counter_regression"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrRPIDMismatch):
		return "rpid_mismatch"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrPolicyDenied):
		return "policy_denied"
	}
	return "internal"
}
