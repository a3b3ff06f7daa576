package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	jose "github.com/go-jose/go-jose/v3"
)

// ErrInvalidState marks a state parameter that could not be decoded or
// failed its integrity check.
var ErrInvalidState = errors.New("invalid state parameter")

// StateCodec serializes the StateBundle for the provider's state
// parameter. Without a secret the bundle is plain JSON, matching what
// mobile clients and the provider already round-trip. With a secret it
// becomes a compact HS256 JWS, which rejects tampered callbacks at the
// cost of an opaque-to-humans wire format.
type StateCodec struct {
	secret []byte
}

// NewStateCodec builds a codec. An empty secret selects the unsigned
// JSON format.
func NewStateCodec(secret string) *StateCodec {
	c := &StateCodec{}
	if secret != "" {
		c.secret = []byte(secret)
	}
	return c
}

// Signed reports whether bundles carry an integrity signature.
func (c *StateCodec) Signed() bool {
	return len(c.secret) > 0
}

// Encode serializes a bundle for the state query parameter.
func (c *StateCodec) Encode(b StateBundle) (string, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	if !c.Signed() {
		return string(payload), nil
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: c.secret}, nil)
	if err != nil {
		return "", fmt.Errorf("state signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	out, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("serialize state: %w", err)
	}
	return out, nil
}

// Decode recovers a bundle from a state parameter. Any parse or
// signature failure maps to ErrInvalidState; callers never learn which.
func (c *StateCodec) Decode(raw string) (StateBundle, error) {
	if raw == "" {
		return StateBundle{}, ErrInvalidState
	}

	payload := []byte(raw)
	if c.Signed() {
		obj, err := jose.ParseSigned(raw)
		if err != nil {
			return StateBundle{}, ErrInvalidState
		}
		payload, err = obj.Verify(c.secret)
		if err != nil {
			return StateBundle{}, ErrInvalidState
		}
	}

	var b StateBundle
	if err := json.Unmarshal(payload, &b); err != nil {
		return StateBundle{}, ErrInvalidState
	}
	return b, nil
}

// acceptedScheme reports whether raw is an absolute URL whose scheme is
// in the accepted list. Comparison is case-insensitive per RFC 3986.
func acceptedScheme(raw string, schemes []string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return true
		}
	}
	return false
}

// hostAllowed applies the optional return-host allow-list. An empty list
// allows every host, preserving the scheme-only check.
func hostAllowed(raw string, hosts []string) bool {
	if len(hosts) == 0 {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, h := range hosts {
		if strings.EqualFold(u.Host, h) || strings.EqualFold(u.Hostname(), h) {
			return true
		}
	}
	return false
}
