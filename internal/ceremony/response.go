package ceremony

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
)

// Kind discriminates a credential response by the ceremony its client data claims.
type Kind string

const (
	KindCreate Kind = "create"
	KindGet    Kind = "get"
)

// Response is a client credential response whose variant is fixed by the client data type
// before any ceremony-specific field is read. Only the accessor matching Kind succeeds.
type Response struct {
	Kind         Kind
	CredentialID []byte
	ClientData   protocol.CollectedClientData

	body []byte
}

type envelope struct {
	ID       string                    `json:"id"`
	RawID    protocol.URLEncodedBase64 `json:"rawId"`
	Response struct {
		ClientDataJSON protocol.URLEncodedBase64 `json:"clientDataJSON"`
	} `json:"response"`
}

// DecodeResponse reads the common envelope and client data of a WebAuthn response body.
// A client data type other than webauthn.create or webauthn.get yields ErrTypeMismatch.
func DecodeResponse(body []byte) (*Response, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(env.Response.ClientDataJSON) == 0 {
		return nil, fmt.Errorf("%w: missing clientDataJSON", ErrMalformedResponse)
	}
	var cd protocol.CollectedClientData
	if err := json.Unmarshal(env.Response.ClientDataJSON, &cd); err != nil {
		return nil, fmt.Errorf("%w: client data: %v", ErrMalformedResponse, err)
	}

	id := []byte(env.RawID)
	if len(id) == 0 {
		var err error
		if id, err = base64.RawURLEncoding.DecodeString(env.ID); err != nil || len(id) == 0 {
			return nil, fmt.Errorf("%w: missing credential id", ErrMalformedResponse)
		}
	}

	r := &Response{CredentialID: id, ClientData: cd, body: body}
	switch cd.Type {
	case protocol.CreateCeremony:
		r.Kind = KindCreate
	case protocol.AssertCeremony:
		r.Kind = KindGet
	default:
		return nil, ErrTypeMismatch
	}
	return r, nil
}

// Attestation parses the registration variant.
func (r *Response) Attestation() (*protocol.ParsedCredentialCreationData, error) {
	if r.Kind != KindCreate {
		return nil, ErrTypeMismatch
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(r.body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return parsed, nil
}

// Assertion parses the authentication variant.
func (r *Response) Assertion() (*protocol.ParsedCredentialAssertionData, error) {
	if r.Kind != KindGet {
		return nil, ErrTypeMismatch
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(r.body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return parsed, nil
}
