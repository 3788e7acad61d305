package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const decisionQuery = "data.jobtrackr.authenticator.decision"

// DefaultRegoPolicy requires user presence on every ceremony, and user verification when configured.
const DefaultRegoPolicy = `package jobtrackr.authenticator

default allow := false

allow if {
	input.flags.user_present
	not uv_missing
}

uv_missing if {
	input.require_user_verification
	not input.flags.user_verified
}

reasons contains "user_presence_missing" if {
	not input.flags.user_present
}

reasons contains "user_verification_missing" if {
	uv_missing
}

decision := {"allow": allow, "reasons": reasons}
`

// OPAEvaluator evaluates the authenticator policy with an in-process OPA Rego engine.
// The policy is compiled once; evaluation is safe for concurrent use.
type OPAEvaluator struct {
	query     rego.PreparedEvalQuery
	requireUV bool
	logger    *slog.Logger
}

// NewOPAEvaluator compiles policy (DefaultRegoPolicy when empty) and prepares the decision query.
func NewOPAEvaluator(ctx context.Context, policy string, requireUV bool, logger *slog.Logger) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRegoPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	compiler, err := ast.CompileModules(map[string]string{"authenticator.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(decisionQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAEvaluator{query: q, requireUV: requireUV, logger: logger}, nil
}

// HealthCheck evaluates the prepared policy against a minimal passing input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	d, err := e.eval(ctx, AuthenticatorInput{Ceremony: "authentication", UserPresent: true, UserVerified: true})
	if err != nil {
		return err
	}
	if !d.Allow {
		return fmt.Errorf("policy rejected a present and verified user")
	}
	return nil
}

// EvaluateAuthenticator evaluates the policy. If Rego evaluation fails the built-in rule
// (presence required, verification when configured) decides and the failure is logged.
func (e *OPAEvaluator) EvaluateAuthenticator(ctx context.Context, in AuthenticatorInput) (Decision, error) {
	d, err := e.eval(ctx, in)
	if err != nil {
		e.logger.WarnContext(ctx, "policy: evaluation failed, using built-in rule", "error", err)
		return e.builtin(in), nil
	}
	return d, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, in AuthenticatorInput) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.buildInput(in)))
	if err != nil {
		return Decision{}, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("policy query returned no result")
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("policy decision has type %T", rs[0].Expressions[0].Value)
	}
	var d Decision
	d.Allow, _ = obj["allow"].(bool)
	if reasons, ok := obj["reasons"].([]interface{}); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
	}
	return d, nil
}

func (e *OPAEvaluator) buildInput(in AuthenticatorInput) map[string]interface{} {
	return map[string]interface{}{
		"ceremony":                  in.Ceremony,
		"require_user_verification": e.requireUV,
		"attestation_format":        in.AttestationFormat,
		"flags": map[string]interface{}{
			"user_present":    in.UserPresent,
			"user_verified":   in.UserVerified,
			"backup_eligible": in.BackupEligible,
			"backup_state":    in.BackupState,
		},
	}
}

func (e *OPAEvaluator) builtin(in AuthenticatorInput) Decision {
	var d Decision
	if !in.UserPresent {
		d.Reasons = append(d.Reasons, "user_presence_missing")
	}
	if e.requireUV && !in.UserVerified {
		d.Reasons = append(d.Reasons, "user_verification_missing")
	}
	d.Allow = len(d.Reasons) == 0
	return d
}
