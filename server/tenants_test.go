package server

import (
	"errors"
	"testing"
)

func twoTenantConfigs() []TenantConfig {
	return []TenantConfig{
		{Name: "peako", Audience: "https://api.peako.example.com", Domain: "peako.auth0.com", ClientID: "peako-client"},
		{Name: "vita", Audience: "https://api.vita.example.com", Domain: "vita.auth0.com", ClientID: "vita-client", ClientSecret: "s3cret"},
	}
}

func TestResolveExactMatch(t *testing.T) {
	reg, err := NewTenantRegistry(twoTenantConfigs())
	if err != nil {
		t.Fatalf("NewTenantRegistry returned error: %v", err)
	}

	tenant, err := reg.Resolve("https://api.vita.example.com")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if tenant.Name != "vita" {
		t.Fatalf("resolved tenant %q, want vita", tenant.Name)
	}
}

func TestResolveUnknownAudienceNeverDefaults(t *testing.T) {
	reg, err := NewTenantRegistry(twoTenantConfigs())
	if err != nil {
		t.Fatalf("NewTenantRegistry returned error: %v", err)
	}

	if _, err := reg.Resolve("https://api.other.example.com"); !errors.Is(err, ErrUnknownAudience) {
		t.Fatalf("Resolve returned %v, want ErrUnknownAudience", err)
	}
	if _, err := reg.Resolve(""); !errors.Is(err, ErrAudienceRequired) {
		t.Fatalf("Resolve(\"\") with two tenants returned %v, want ErrAudienceRequired", err)
	}
}

func TestResolveSingleTenantDefault(t *testing.T) {
	reg, err := NewTenantRegistry([]TenantConfig{
		{Name: "only", Audience: "https://api.example.com", Domain: "only.auth0.com", ClientID: "c1"},
	})
	if err != nil {
		t.Fatalf("NewTenantRegistry returned error: %v", err)
	}

	tenant, err := reg.Resolve("")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if tenant.Name != "only" {
		t.Fatalf("resolved tenant %q, want only", tenant.Name)
	}
}

func TestNewTenantRegistryRejectsBadConfig(t *testing.T) {
	_, err := NewTenantRegistry([]TenantConfig{
		{Name: "a", Domain: "a.auth0.com", ClientID: "c"},
		{Name: "b", Domain: "b.auth0.com", ClientID: "c"},
	})
	if err == nil {
		t.Fatalf("expected error for multiple tenants without audiences")
	}

	_, err = NewTenantRegistry([]TenantConfig{
		{Name: "a", Audience: "aud", Domain: "a.auth0.com", ClientID: "c"},
		{Name: "b", Audience: "aud", Domain: "b.auth0.com", ClientID: "c"},
	})
	if err == nil {
		t.Fatalf("expected error for duplicate audiences")
	}
}

func TestTenantURLs(t *testing.T) {
	tenant := Tenant{Domain: "myapp.eu.auth0.com"}
	if got := tenant.AuthorizeURL(); got != "https://myapp.eu.auth0.com/authorize" {
		t.Fatalf("AuthorizeURL = %q", got)
	}
	if got := tenant.TokenURL(); got != "https://myapp.eu.auth0.com/oauth/token" {
		t.Fatalf("TokenURL = %q", got)
	}
	if got := tenant.IssuerURL(); got != "https://myapp.eu.auth0.com/" {
		t.Fatalf("IssuerURL = %q", got)
	}

	// Explicit schemes are kept for local providers and tests.
	local := Tenant{Domain: "http://127.0.0.1:9999"}
	if got := local.TokenURL(); got != "http://127.0.0.1:9999/oauth/token" {
		t.Fatalf("local TokenURL = %q", got)
	}
}
