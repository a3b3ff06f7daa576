package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func exchangerForProvider(t *testing.T, provider *httptest.Server, tenantMods func(*TenantConfig)) *TokenExchanger {
	t.Helper()
	tc := TenantConfig{
		Name:     "test",
		Audience: "https://api.example.com",
		Domain:   provider.URL,
		ClientID: "client-1",
	}
	if tenantMods != nil {
		tenantMods(&tc)
	}
	reg, err := NewTenantRegistry([]TenantConfig{tc})
	if err != nil {
		t.Fatalf("NewTenantRegistry returned error: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Server.PublicURL = "https://relay.example.com"
	cfg.Tenants = []TenantConfig{tc}
	return NewTokenExchanger(cfg, reg, testLogger())
}

func TestExchangePKCESendsVerifierNotSecret(t *testing.T) {
	var gotBody map[string]string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeJSON(w, map[string]any{
			"access_token": "AT1",
			"expires_in":   3600,
			"token_type":   "Bearer",
			"scope":        "openid profile",
		})
	}))
	defer provider.Close()

	// Tenant has a secret too; a supplied verifier must win.
	x := exchangerForProvider(t, provider, func(tc *TenantConfig) { tc.ClientSecret = "shh" })

	tokens, err := x.Exchange(context.Background(), ExchangeRequest{
		Code:         "code-1",
		CodeVerifier: "verifier-1",
		Audience:     "https://api.example.com",
	})
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if gotBody["grant_type"] != "authorization_code" {
		t.Fatalf("grant_type = %q", gotBody["grant_type"])
	}
	if gotBody["client_id"] != "client-1" || gotBody["code"] != "code-1" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if gotBody["redirect_uri"] != "https://relay.example.com/callback" {
		t.Fatalf("redirect_uri = %q", gotBody["redirect_uri"])
	}
	if gotBody["code_verifier"] != "verifier-1" {
		t.Fatalf("code_verifier = %q", gotBody["code_verifier"])
	}
	if _, has := gotBody["client_secret"]; has {
		t.Fatalf("client_secret sent alongside code_verifier")
	}
	if gotBody["audience"] != "https://api.example.com" {
		t.Fatalf("audience = %q", gotBody["audience"])
	}

	// Only the five token-set fields survive; extra provider fields are
	// dropped by the response type.
	if tokens.AccessToken != "AT1" || tokens.ExpiresIn != 3600 || tokens.TokenType != "Bearer" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if tokens.IDToken != "" || tokens.RefreshToken != "" {
		t.Fatalf("absent optional fields should stay empty, got %+v", tokens)
	}
}

func TestExchangeSecretMode(t *testing.T) {
	var gotBody map[string]string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, map[string]any{"access_token": "AT2", "expires_in": 60, "token_type": "Bearer"})
	}))
	defer provider.Close()

	x := exchangerForProvider(t, provider, func(tc *TenantConfig) { tc.ClientSecret = "shh" })

	if _, err := x.Exchange(context.Background(), ExchangeRequest{Code: "c", Audience: "https://api.example.com"}); err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if gotBody["client_secret"] != "shh" {
		t.Fatalf("client_secret = %q", gotBody["client_secret"])
	}
	if _, has := gotBody["code_verifier"]; has {
		t.Fatalf("code_verifier sent in secret mode")
	}
}

func TestExchangeConfigurationErrorBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer provider.Close()

	// No secret configured and no verifier supplied.
	x := exchangerForProvider(t, provider, nil)

	_, err := x.Exchange(context.Background(), ExchangeRequest{Code: "c", Audience: "https://api.example.com"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Exchange returned %v, want ErrConfiguration", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("token endpoint called %d times, want 0", calls.Load())
	}
}

func TestExchangeIncompleteTenant(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer provider.Close()

	x := exchangerForProvider(t, provider, func(tc *TenantConfig) { tc.ClientID = "" })

	_, err := x.Exchange(context.Background(), ExchangeRequest{Code: "c", CodeVerifier: "v", Audience: "https://api.example.com"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Exchange returned %v, want ErrConfiguration", err)
	}
}

func TestExchangeUpstreamStatusPassthrough(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "authorization code expired",
		})
	}))
	defer provider.Close()

	x := exchangerForProvider(t, provider, nil)

	_, err := x.Exchange(context.Background(), ExchangeRequest{Code: "c", CodeVerifier: "v", Audience: "https://api.example.com"})
	var exchErr *ExchangeError
	if !errors.As(err, &exchErr) {
		t.Fatalf("Exchange returned %v, want *ExchangeError", err)
	}
	if exchErr.Status != http.StatusForbidden {
		t.Fatalf("Status = %d, want %d", exchErr.Status, http.StatusForbidden)
	}
	if exchErr.Code != "invalid_grant" || exchErr.Description != "authorization code expired" {
		t.Fatalf("unexpected upstream detail %+v", exchErr)
	}
}

func TestExchangeUnknownAudience(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer provider.Close()

	x := exchangerForProvider(t, provider, nil)

	_, err := x.Exchange(context.Background(), ExchangeRequest{Code: "c", CodeVerifier: "v", Audience: "https://api.nope.example.com"})
	if !errors.Is(err, ErrUnknownAudience) {
		t.Fatalf("Exchange returned %v, want ErrUnknownAudience", err)
	}
}
