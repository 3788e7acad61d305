package security

import (
	"crypto"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or of the wrong kind.
	ErrInvalidToken = errors.New("invalid token")
)

// Token kinds carried in the "typ" claim so one kind cannot stand in for another.
const (
	kindSession        = "session"
	kindMasterVerified = "master_verified"
)

// SessionClaims holds JWT claims for an application session issued after passkey authentication.
type SessionClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"typ"`
	// CredentialID is the base64url id of the passkey that authenticated the session.
	CredentialID string `json:"cred,omitempty"`
}

// MasterVerifiedClaims marks that the subject proved knowledge of their master password.
type MasterVerifiedClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"typ"`
}

// TokenProvider issues and validates session and master-verified JWTs (RS256, ES256 or EdDSA).
// Validation only accepts the algorithm of the configured key.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   string
	sessionTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey.
// issuer and audience are set on claims and checked on validation.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, sessionTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		method:     signingMethod(publicKey),
		issuer:     issuer,
		audience:   audience,
		sessionTTL: sessionTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueSession issues a session JWT for userID. Returns the token, its session id (jti), and expiration time.
func (p *TokenProvider) IssueSession(userID, credentialID string) (token, sessionID string, expiresAt time.Time, err error) {
	sessionID, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.now()
	expiresAt = now.Add(p.sessionTTL)
	claims := SessionClaims{
		RegisteredClaims: p.registered(sessionID, userID, now, expiresAt),
		Kind:             kindSession,
		CredentialID:     credentialID,
	}
	token, err = p.sign(claims)
	return token, sessionID, expiresAt, err
}

// ValidateSession parses and validates a session token (signature, exp, iss, aud, kind).
// Returns sessionID and userID, or ErrInvalidToken.
func (p *TokenProvider) ValidateSession(tokenString string) (sessionID, userID string, err error) {
	var claims SessionClaims
	if err := p.parse(tokenString, &claims); err != nil {
		return "", "", err
	}
	if claims.Kind != kindSession || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.ID, claims.Subject, nil
}

// IssueMasterVerified issues a token valid for ttl asserting userID verified their master password.
func (p *TokenProvider) IssueMasterVerified(userID string, ttl time.Duration) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now()
	expiresAt = now.Add(ttl)
	claims := MasterVerifiedClaims{
		RegisteredClaims: p.registered(jti, userID, now, expiresAt),
		Kind:             kindMasterVerified,
	}
	token, err = p.sign(claims)
	return token, expiresAt, err
}

// ValidateMasterVerified returns the user id bound to a master-verified token.
func (p *TokenProvider) ValidateMasterVerified(tokenString string) (userID string, err error) {
	var claims MasterVerifiedClaims
	if err := p.parse(tokenString, &claims); err != nil {
		return "", err
	}
	if claims.Kind != kindMasterVerified || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (p *TokenProvider) registered(jti, subject string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	if p.method == nil {
		return "", ErrInvalidKey
	}
	return jwt.NewWithClaims(p.method, claims).SignedString(p.privateKey)
}

func (p *TokenProvider) parse(tokenString string, claims jwt.Claims) error {
	if p.method == nil {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

func generateJTI() (string, error) {
	b, err := RandomBytes(16)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
