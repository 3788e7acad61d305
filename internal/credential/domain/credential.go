package domain

import (
	"encoding/base64"
	"time"
)

// DeviceType says whether a passkey can sync across devices (backup eligible) or is bound to one authenticator.
type DeviceType string

const (
	DeviceTypeSingle DeviceType = "singleDevice"
	DeviceTypeMulti  DeviceType = "multiDevice"
)

// Credential is a registered public-key credential (stored in webauthn_credentials).
// PublicKey is the COSE_Key captured at registration and is never rewritten.
type Credential struct {
	ID                []byte
	OwnerUserID       string
	PublicKey         []byte
	SignCount         uint32
	Transports        []string
	DeviceType        DeviceType
	DisplayName       string
	AAGUID            []byte
	BackupEligible    bool
	BackupState       bool
	AttestationFormat string
	CreatedAt         time.Time
	LastUsedAt        *time.Time
}

// Descriptor identifies a credential in exclusion and allow lists.
type Descriptor struct {
	ID         []byte
	Transports []string
}

// Summary is the listing view of a credential. It never carries key material.
type Summary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	DeviceType DeviceType `json:"deviceType"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
}

// EncodeID returns the wire form of a credential id (base64url, no padding).
func EncodeID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

// DecodeID parses a credential id from its wire form. Padded input is accepted.
func DecodeID(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

// EncodedID returns the credential id in wire form.
func (c *Credential) EncodedID() string {
	return EncodeID(c.ID)
}

// Descriptor returns the list entry for c.
func (c *Credential) Descriptor() Descriptor {
	return Descriptor{ID: c.ID, Transports: c.Transports}
}

// Summary returns the listing view of c.
func (c *Credential) Summary() Summary {
	return Summary{
		ID:         c.EncodedID(),
		Name:       c.DisplayName,
		DeviceType: c.DeviceType,
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
	}
}

// CounterAccepted reports whether next may replace the stored counter.
// A stored counter of zero marks an authenticator without a counter and disables the check.
func (c *Credential) CounterAccepted(next uint32) bool {
	return c.SignCount == 0 || next > c.SignCount
}
