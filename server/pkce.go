package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// PKCE verifier length bounds per RFC 7636 section 4.1.
const (
	MinVerifierLength     = 43
	MaxVerifierLength     = 128
	DefaultVerifierLength = 128

	// MethodS256 is the only challenge method the relay emits.
	MethodS256 = "S256"
)

// PKCE holds a generated verifier/challenge pair.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCE produces a hex-encoded code verifier of the requested
// length and its S256 challenge: base64url(SHA-256(verifier)) without
// padding. The verifier comes from crypto/rand; an unavailable secure
// random source is a fatal environment error, not a recoverable one.
func GeneratePKCE(length int) (PKCE, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return PKCE{}, fmt.Errorf("verifier length %d outside [%d, %d]", length, MinVerifierLength, MaxVerifierLength)
	}

	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return PKCE{}, fmt.Errorf("secure random source unavailable: %w", err)
	}
	verifier := hex.EncodeToString(buf)[:length]

	return PKCE{
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
		Method:    MethodS256,
	}, nil
}

// ChallengeS256 derives the S256 code challenge for a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
