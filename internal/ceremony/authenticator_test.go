package ceremony

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

const (
	flagUP = 0x01
	flagUV = 0x04
	flagBE = 0x08
	flagBS = 0x10
	flagAT = 0x40
)

// testAuthenticator is a software ES256 authenticator that produces "none" attestations
// and signed assertions, with hooks to tamper with individual fields.
type testAuthenticator struct {
	t       *testing.T
	key     *ecdsa.PrivateKey
	credID  []byte
	aaguid  []byte
	rpID    string
	origin  string
	counter uint32
	flags   byte
}

func newTestAuthenticator(t *testing.T, rpID, origin string) *testAuthenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		t.Fatalf("credential id: %v", err)
	}
	return &testAuthenticator{
		t:      t,
		key:    key,
		credID: credID,
		aaguid: make([]byte, 16),
		rpID:   rpID,
		origin: origin,
		flags:  flagUP | flagUV,
	}
}

type testClientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

func (a *testAuthenticator) coseKey() []byte {
	x := make([]byte, 32)
	y := make([]byte, 32)
	a.key.PublicKey.X.FillBytes(x)
	a.key.PublicKey.Y.FillBytes(y)
	b, err := cbor.Marshal(map[int]interface{}{1: 2, 3: -7, -1: 1, -2: x, -3: y})
	if err != nil {
		a.t.Fatalf("cose key: %v", err)
	}
	return b
}

func (a *testAuthenticator) authData(flags byte, attested bool) []byte {
	rpIDHash := sha256.Sum256([]byte(a.rpID))
	out := append([]byte{}, rpIDHash[:]...)
	if attested {
		flags |= flagAT
	}
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, a.counter)
	if attested {
		out = append(out, a.aaguid...)
		out = binary.BigEndian.AppendUint16(out, uint16(len(a.credID)))
		out = append(out, a.credID...)
		out = append(out, a.coseKey()...)
	}
	return out
}

func (a *testAuthenticator) clientDataJSON(typ, challenge string, mutate func(*testClientData)) []byte {
	cd := testClientData{Type: typ, Challenge: challenge, Origin: a.origin}
	if mutate != nil {
		mutate(&cd)
	}
	b, err := json.Marshal(cd)
	if err != nil {
		a.t.Fatalf("client data: %v", err)
	}
	return b
}

// attest returns a registration response body for challenge (base64url, as sent in options).
func (a *testAuthenticator) attest(challenge string, mutate func(*testClientData)) []byte {
	attObj, err := cbor.Marshal(map[string]interface{}{
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
		"authData": a.authData(a.flags, true),
	})
	if err != nil {
		a.t.Fatalf("attestation object: %v", err)
	}
	return a.body(map[string]interface{}{
		"clientDataJSON":    b64(a.clientDataJSON("webauthn.create", challenge, mutate)),
		"attestationObject": b64(attObj),
		"transports":        []string{"internal"},
	})
}

// assert returns an authentication response body signed with the authenticator key.
func (a *testAuthenticator) assert(challenge string, userHandle []byte, mutate func(*testClientData)) []byte {
	clientData := a.clientDataJSON("webauthn.get", challenge, mutate)
	authData := a.authData(a.flags, false)
	hash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte{}, authData...), hash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	if err != nil {
		a.t.Fatalf("sign: %v", err)
	}
	resp := map[string]interface{}{
		"clientDataJSON":    b64(clientData),
		"authenticatorData": b64(authData),
		"signature":         b64(sig),
	}
	if len(userHandle) > 0 {
		resp["userHandle"] = b64(userHandle)
	}
	return a.body(resp)
}

func (a *testAuthenticator) body(resp map[string]interface{}) []byte {
	b, err := json.Marshal(map[string]interface{}{
		"id":       b64(a.credID),
		"rawId":    b64(a.credID),
		"type":     "public-key",
		"response": resp,
	})
	if err != nil {
		a.t.Fatalf("response body: %v", err)
	}
	return b
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
