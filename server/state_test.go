package server

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestStateCodecUnsignedRoundTrip(t *testing.T) {
	codec := NewStateCodec("")
	bundle := StateBundle{
		State:        "caller-123",
		ReturnURL:    "exp://127.0.0.1:19000/--/auth",
		CodeVerifier: "abc",
		Audience:     "https://api.example.com",
	}

	encoded, err := codec.Encode(bundle)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	// The unsigned format is plain JSON, which mobile clients and the
	// proxy leg rely on.
	var asJSON map[string]any
	if err := json.Unmarshal([]byte(encoded), &asJSON); err != nil {
		t.Fatalf("unsigned state is not JSON: %v", err)
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if decoded != bundle {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, bundle)
	}
}

func TestStateCodecSignedRoundTripAndTamper(t *testing.T) {
	codec := NewStateCodec("0123456789abcdef0123456789abcdef")
	bundle := StateBundle{State: "s1", ReturnURL: "exp://app/cb"}

	encoded, err := codec.Encode(bundle)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(encoded, ".") {
		t.Fatalf("signed state %q is not a compact JWS", encoded)
	}

	decoded, err := codec.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if decoded != bundle {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, bundle)
	}

	parts := strings.Split(encoded, ".")
	tampered := parts[0] + "." + "eyJzdGF0ZSI6ImV2aWwifQ" + "." + parts[2]
	if _, err := codec.Decode(tampered); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("tampered state accepted, err=%v", err)
	}

	other := NewStateCodec("another-secret-another-secret-xx")
	if _, err := other.Decode(encoded); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("state signed with a different key accepted, err=%v", err)
	}
}

func TestStateCodecDecodeGarbage(t *testing.T) {
	for _, codec := range []*StateCodec{NewStateCodec(""), NewStateCodec("k")} {
		for _, raw := range []string{"", "not json", "{"} {
			if _, err := codec.Decode(raw); !errors.Is(err, ErrInvalidState) {
				t.Fatalf("Decode(%q) signed=%v: err=%v, want ErrInvalidState", raw, codec.Signed(), err)
			}
		}
	}
}

func TestAcceptedScheme(t *testing.T) {
	schemes := []string{"exp", "http", "https"}
	cases := []struct {
		raw  string
		want bool
	}{
		{"exp://127.0.0.1:19000/--/auth", true},
		{"https://app.example.com/cb", true},
		{"HTTP://app.example.com/cb", true},
		{"javascript:alert(1)", false},
		{"file:///etc/passwd", false},
		{"/relative/path", false},
		{"", false},
	}
	for _, c := range cases {
		if got := acceptedScheme(c.raw, schemes); got != c.want {
			t.Fatalf("acceptedScheme(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestHostAllowed(t *testing.T) {
	if !hostAllowed("https://anywhere.example.com/cb", nil) {
		t.Fatalf("empty allow-list should allow any host")
	}
	allow := []string{"app.example.com"}
	if !hostAllowed("https://app.example.com/cb", allow) {
		t.Fatalf("listed host rejected")
	}
	if hostAllowed("https://evil.example.net/cb", allow) {
		t.Fatalf("unlisted host accepted")
	}
}
