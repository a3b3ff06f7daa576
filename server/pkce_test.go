package server

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGeneratePKCEChallengeMatchesVerifier(t *testing.T) {
	for _, length := range []int{MinVerifierLength, 64, 100, MaxVerifierLength} {
		pkce, err := GeneratePKCE(length)
		if err != nil {
			t.Fatalf("GeneratePKCE(%d) returned error: %v", length, err)
		}
		if len(pkce.Verifier) != length {
			t.Fatalf("verifier length %d, want %d", len(pkce.Verifier), length)
		}
		if pkce.Method != MethodS256 {
			t.Fatalf("method %q, want %q", pkce.Method, MethodS256)
		}

		sum := sha256.Sum256([]byte(pkce.Verifier))
		want := base64.RawURLEncoding.EncodeToString(sum[:])
		if pkce.Challenge != want {
			t.Fatalf("challenge %q does not match base64url(sha256(verifier)) %q", pkce.Challenge, want)
		}
		if strings.ContainsAny(pkce.Challenge, "+/=") {
			t.Fatalf("challenge %q contains non-base64url characters", pkce.Challenge)
		}
	}
}

func TestGeneratePKCERejectsOutOfRangeLengths(t *testing.T) {
	for _, length := range []int{0, MinVerifierLength - 1, MaxVerifierLength + 1} {
		if _, err := GeneratePKCE(length); err == nil {
			t.Fatalf("GeneratePKCE(%d) accepted an out-of-range length", length)
		}
	}
}

func TestGeneratePKCEVerifiersAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		pkce, err := GeneratePKCE(DefaultVerifierLength)
		if err != nil {
			t.Fatalf("GeneratePKCE returned error: %v", err)
		}
		if seen[pkce.Verifier] {
			t.Fatalf("verifier %q repeated", pkce.Verifier)
		}
		seen[pkce.Verifier] = true
	}
}
