// Package engine decides whether an authenticator's response is acceptable, using Rego policies.
package engine

import "context"

// AuthenticatorInput is what the policy sees about one ceremony response.
type AuthenticatorInput struct {
	// Ceremony is "registration" or "authentication".
	Ceremony          string
	UserPresent       bool
	UserVerified      bool
	BackupEligible    bool
	BackupState       bool
	AttestationFormat string
}

// Decision is the policy outcome. Reasons names the failed requirements when Allow is false.
type Decision struct {
	Allow   bool
	Reasons []string
}

// Evaluator evaluates the authenticator acceptance policy.
type Evaluator interface {
	EvaluateAuthenticator(ctx context.Context, in AuthenticatorInput) (Decision, error)
}
