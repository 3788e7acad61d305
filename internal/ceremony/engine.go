// Package ceremony runs WebAuthn registration and authentication ceremonies: it builds option
// objects, verifies client responses against single-use challenges, and records credentials.
package ceremony

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"jobtrackr/backend/internal/challenge"
	chdomain "jobtrackr/backend/internal/challenge/domain"
	"jobtrackr/backend/internal/credential"
	creddomain "jobtrackr/backend/internal/credential/domain"
	"jobtrackr/backend/internal/policy/engine"
)

// State is a ceremony's position in Idle -> OptionsIssued -> Verifying -> {Verified, Rejected}.
type State string

const (
	StateIdle          State = "idle"
	StateOptionsIssued State = "options_issued"
	StateVerifying     State = "verifying"
	StateVerified      State = "verified"
	StateRejected      State = "rejected"
)

// Accepted public-key algorithms, in preference order.
var acceptedAlgorithms = []webauthncose.COSEAlgorithmIdentifier{
	webauthncose.AlgES256,
	webauthncose.AlgRS256,
	webauthncose.AlgEdDSA,
}

// ChallengeStore is the minimal challenge store needed by the engine.
type ChallengeStore interface {
	Issue(ctx context.Context, purpose chdomain.Purpose, scopeUserID string) (*challenge.Issued, error)
	Consume(ctx context.Context, handle string) (*chdomain.Challenge, error)
}

// CredentialRegistry is the minimal credential registry needed by the engine.
type CredentialRegistry interface {
	ListForUser(ctx context.Context, userID string) ([]*creddomain.Credential, error)
	ExclusionList(ctx context.Context, userID string) ([]creddomain.Descriptor, error)
	AllowList(ctx context.Context, userID string) ([]creddomain.Descriptor, error)
	Insert(ctx context.Context, c *creddomain.Credential) (*creddomain.Credential, error)
	Touch(ctx context.Context, id []byte, next uint32) error
	FindByCredentialID(ctx context.Context, id []byte) (*creddomain.Credential, error)
}

// Config identifies the relying party.
type Config struct {
	RPID     string
	RPName   string
	RPOrigin string
	Timeout  time.Duration
}

// RegistrationOptions is returned by BeginRegistration. Handle correlates the finish call.
type RegistrationOptions struct {
	Handle    string
	ExpiresAt time.Time
	Options   protocol.PublicKeyCredentialCreationOptions
}

// AuthenticationOptions is returned by BeginAuthentication.
type AuthenticationOptions struct {
	Handle    string
	ExpiresAt time.Time
	Options   protocol.PublicKeyCredentialRequestOptions
}

// Result is the terminal outcome of a finish call. Reason is set when State is StateRejected.
// A rejected authentication carries the credential only for ErrCounterRegression.
type Result struct {
	State      State
	Reason     error
	UserID     string
	Credential *creddomain.Credential
}

// Engine runs ceremonies. It is safe for concurrent use.
type Engine struct {
	cfg        Config
	rpIDHash   [32]byte
	challenges ChallengeStore
	registry   CredentialRegistry
	policy     engine.Evaluator
}

// NewEngine returns an Engine. policy may be nil, in which case no acceptance policy is applied.
func NewEngine(cfg Config, challenges ChallengeStore, registry CredentialRegistry, policy engine.Evaluator) (*Engine, error) {
	if cfg.RPID == "" || cfg.RPOrigin == "" {
		return nil, errors.New("ceremony: relying party id and origin are required")
	}
	if cfg.RPName == "" {
		cfg.RPName = cfg.RPID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Engine{
		cfg:        cfg,
		rpIDHash:   sha256.Sum256([]byte(cfg.RPID)),
		challenges: challenges,
		registry:   registry,
		policy:     policy,
	}, nil
}

// BeginRegistration issues a registration challenge scoped to userID and returns creation options
// excluding the user's existing credentials.
func (e *Engine) BeginRegistration(ctx context.Context, userID, displayName string) (*RegistrationOptions, error) {
	if userID == "" {
		return nil, errors.New("ceremony: user id is required")
	}
	exclude, err := e.registry.ExclusionList(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("exclusion list: %w", err)
	}
	issued, err := e.challenges.Issue(ctx, chdomain.PurposeRegistration, userID)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = userID
	}

	params := make([]protocol.CredentialParameter, 0, len(acceptedAlgorithms))
	for _, alg := range acceptedAlgorithms {
		params = append(params, protocol.CredentialParameter{Type: protocol.PublicKeyCredentialType, Algorithm: alg})
	}
	requireResidentKey := false

	return &RegistrationOptions{
		Handle:    issued.Handle,
		ExpiresAt: issued.Challenge.ExpiresAt,
		Options: protocol.PublicKeyCredentialCreationOptions{
			RelyingParty: protocol.RelyingPartyEntity{
				CredentialEntity: protocol.CredentialEntity{Name: e.cfg.RPName},
				ID:               e.cfg.RPID,
			},
			User: protocol.UserEntity{
				CredentialEntity: protocol.CredentialEntity{Name: displayName},
				DisplayName:      displayName,
				ID:               protocol.URLEncodedBase64(userID),
			},
			Challenge:             protocol.URLEncodedBase64(issued.Challenge.Value),
			Parameters:            params,
			Timeout:               int(e.cfg.Timeout.Milliseconds()),
			CredentialExcludeList: descriptors(exclude),
			AuthenticatorSelection: protocol.AuthenticatorSelection{
				RequireResidentKey: &requireResidentKey,
				ResidentKey:        protocol.ResidentKeyRequirementDiscouraged,
				UserVerification:   protocol.VerificationPreferred,
			},
			Attestation: protocol.PreferNoAttestation,
		},
	}, nil
}

// FinishRegistration verifies an attestation response for userID against the challenge behind handle.
// The challenge is consumed first, whatever the outcome. displayName names the passkey; empty means "Passkey <n>".
func (e *Engine) FinishRegistration(ctx context.Context, handle, userID string, body []byte, displayName string) (*Result, error) {
	c, err := e.challenges.Consume(ctx, handle)
	if err != nil {
		return reject(err)
	}

	resp, err := DecodeResponse(body)
	if err != nil {
		return reject(err)
	}
	if resp.Kind != KindCreate {
		return reject(ErrTypeMismatch)
	}
	if err := e.checkClientData(resp, c, chdomain.PurposeRegistration, userID); err != nil {
		return reject(err)
	}

	parsed, err := resp.Attestation()
	if err != nil {
		return reject(err)
	}
	authData := parsed.Response.AttestationObject.AuthData
	if !bytes.Equal(authData.RPIDHash, e.rpIDHash[:]) {
		return reject(ErrRPIDMismatch)
	}
	if !authData.Flags.HasAttestedCredentialData() || len(authData.AttData.CredentialID) == 0 {
		return reject(fmt.Errorf("%w: no attested credential data", ErrMalformedResponse))
	}
	if !bytes.Equal(authData.AttData.CredentialID, parsed.RawID) {
		return reject(fmt.Errorf("%w: credential id does not match attested id", ErrMalformedResponse))
	}
	if _, err := webauthncose.ParsePublicKey(authData.AttData.CredentialPublicKey); err != nil {
		return reject(fmt.Errorf("%w: credential public key: %v", ErrMalformedResponse, err))
	}
	if err := e.checkPolicy(ctx, string(chdomain.PurposeRegistration), authData.Flags, parsed.Response.AttestationObject.Format); err != nil {
		return reject(err)
	}

	if displayName == "" {
		existing, err := e.registry.ListForUser(ctx, userID)
		if err != nil {
			return internal(err)
		}
		displayName = fmt.Sprintf("Passkey %d", len(existing)+1)
	}

	cred := &creddomain.Credential{
		ID:                authData.AttData.CredentialID,
		OwnerUserID:       userID,
		PublicKey:         authData.AttData.CredentialPublicKey,
		SignCount:         authData.Counter,
		Transports:        transports(parsed.Response.Transports),
		DeviceType:        deviceType(authData.Flags),
		DisplayName:       displayName,
		AAGUID:            authData.AttData.AAGUID,
		BackupEligible:    authData.Flags.HasBackupEligible(),
		BackupState:       authData.Flags.HasBackupState(),
		AttestationFormat: parsed.Response.AttestationObject.Format,
	}
	stored, err := e.registry.Insert(ctx, cred)
	if err != nil {
		if errors.Is(err, credential.ErrDuplicateCredential) {
			return reject(ErrDuplicateCredential)
		}
		return internal(err)
	}
	return &Result{State: StateVerified, UserID: userID, Credential: stored}, nil
}

// BeginAuthentication issues an authentication challenge. With a userID the challenge is scoped
// and the allow list names that user's credentials; without one the client discovers a credential.
func (e *Engine) BeginAuthentication(ctx context.Context, userID string) (*AuthenticationOptions, error) {
	allow, err := e.registry.AllowList(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("allow list: %w", err)
	}
	issued, err := e.challenges.Issue(ctx, chdomain.PurposeAuthentication, userID)
	if err != nil {
		return nil, err
	}
	return &AuthenticationOptions{
		Handle:    issued.Handle,
		ExpiresAt: issued.Challenge.ExpiresAt,
		Options: protocol.PublicKeyCredentialRequestOptions{
			Challenge:          protocol.URLEncodedBase64(issued.Challenge.Value),
			Timeout:            int(e.cfg.Timeout.Milliseconds()),
			RelyingPartyID:     e.cfg.RPID,
			AllowedCredentials: descriptors(allow),
			UserVerification:   protocol.VerificationPreferred,
		},
	}, nil
}

// FinishAuthentication verifies an assertion against the challenge behind handle and the stored
// credential. A counter regression rejects the ceremony even when the signature is valid.
func (e *Engine) FinishAuthentication(ctx context.Context, handle string, body []byte) (*Result, error) {
	c, err := e.challenges.Consume(ctx, handle)
	if err != nil {
		return reject(err)
	}

	resp, err := DecodeResponse(body)
	if err != nil {
		return reject(err)
	}
	cred, err := e.registry.FindByCredentialID(ctx, resp.CredentialID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return reject(ErrUnknownCredential)
		}
		return internal(err)
	}
	if resp.Kind != KindGet {
		return reject(ErrTypeMismatch)
	}
	if err := e.checkClientData(resp, c, chdomain.PurposeAuthentication, ""); err != nil {
		return reject(err)
	}
	if c.ScopeUserID != "" && c.ScopeUserID != cred.OwnerUserID {
		return reject(ErrUnknownCredential)
	}

	parsed, err := resp.Assertion()
	if err != nil {
		return reject(err)
	}
	if len(parsed.Response.UserHandle) > 0 && string(parsed.Response.UserHandle) != cred.OwnerUserID {
		return reject(ErrUnknownCredential)
	}
	authData := parsed.Response.AuthenticatorData
	if !bytes.Equal(authData.RPIDHash, e.rpIDHash[:]) {
		return reject(ErrRPIDMismatch)
	}
	if err := verifyAssertionSignature(cred.PublicKey, parsed); err != nil {
		return reject(err)
	}
	if err := e.checkPolicy(ctx, string(chdomain.PurposeAuthentication), authData.Flags, ""); err != nil {
		return reject(err)
	}

	if err := e.registry.Touch(ctx, cred.ID, authData.Counter); err != nil {
		switch {
		case errors.Is(err, credential.ErrCounterRegression):
			// The signature verified, so the regression is attributable to this credential.
			return &Result{State: StateRejected, Reason: ErrCounterRegression, UserID: cred.OwnerUserID, Credential: cred}, ErrCounterRegression
		case errors.Is(err, credential.ErrNotFound):
			return reject(ErrUnknownCredential)
		}
		return internal(err)
	}
	now := time.Now().UTC()
	cred.SignCount = authData.Counter
	cred.LastUsedAt = &now
	return &Result{State: StateVerified, UserID: cred.OwnerUserID, Credential: cred}, nil
}

// checkClientData applies the ordered client data checks: challenge (purpose, scope, value) then origin.
// The type was settled by the response kind.
func (e *Engine) checkClientData(resp *Response, c *chdomain.Challenge, purpose chdomain.Purpose, scopeUserID string) error {
	if c.Purpose != purpose {
		return ErrChallengeMismatch
	}
	if scopeUserID != "" && c.ScopeUserID != scopeUserID {
		return ErrChallengeMismatch
	}
	echoed := strings.TrimRight(resp.ClientData.Challenge, "=")
	if subtle.ConstantTimeCompare([]byte(echoed), []byte(c.Encoded())) != 1 {
		return ErrChallengeMismatch
	}
	if resp.ClientData.Origin != e.cfg.RPOrigin {
		return ErrOriginMismatch
	}
	return nil
}

func (e *Engine) checkPolicy(ctx context.Context, ceremony string, flags protocol.AuthenticatorFlags, format string) error {
	if e.policy == nil {
		return nil
	}
	d, err := e.policy.EvaluateAuthenticator(ctx, engine.AuthenticatorInput{
		Ceremony:          ceremony,
		UserPresent:       flags.UserPresent(),
		UserVerified:      flags.UserVerified(),
		BackupEligible:    flags.HasBackupEligible(),
		BackupState:       flags.HasBackupState(),
		AttestationFormat: format,
	})
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if !d.Allow {
		return fmt.Errorf("%w: %s", ErrPolicyDenied, strings.Join(d.Reasons, ","))
	}
	return nil
}

// verifyAssertionSignature checks the signature over authenticatorData || SHA-256(clientDataJSON)
// using the raw bytes the client sent.
func verifyAssertionSignature(coseKey []byte, parsed *protocol.ParsedCredentialAssertionData) error {
	key, err := webauthncose.ParsePublicKey(coseKey)
	if err != nil {
		return fmt.Errorf("%w: stored key: %v", ErrSignatureInvalid, err)
	}
	clientDataHash := sha256.Sum256(parsed.Raw.AssertionResponse.ClientDataJSON)
	authData := parsed.Raw.AssertionResponse.AuthenticatorData
	signed := make([]byte, 0, len(authData)+len(clientDataHash))
	signed = append(signed, authData...)
	signed = append(signed, clientDataHash[:]...)

	ok, err := webauthncose.VerifySignature(key, signed, parsed.Response.Signature)
	if err != nil || !ok {
		return ErrSignatureInvalid
	}
	return nil
}

func reject(err error) (*Result, error) {
	if !IsRejection(err) {
		return internal(err)
	}
	return &Result{State: StateRejected, Reason: err}, err
}

func internal(err error) (*Result, error) {
	return &Result{State: StateRejected, Reason: err}, err
}

func descriptors(in []creddomain.Descriptor) []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(in))
	for _, d := range in {
		cd := protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: protocol.URLEncodedBase64(d.ID),
		}
		for _, t := range d.Transports {
			cd.Transport = append(cd.Transport, protocol.AuthenticatorTransport(t))
		}
		out = append(out, cd)
	}
	return out
}

func transports(in []protocol.AuthenticatorTransport) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		out = append(out, string(t))
	}
	return out
}

func deviceType(flags protocol.AuthenticatorFlags) creddomain.DeviceType {
	if flags.HasBackupEligible() {
		return creddomain.DeviceTypeMulti
	}
	return creddomain.DeviceTypeSingle
}
