package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"issuer":                                srv.URL + "/",
				"authorization_endpoint":                srv.URL + "/authorize",
				"token_endpoint":                        srv.URL + "/oauth/token",
				"jwks_uri":                              srv.URL + "/.well-known/jwks.json",
				"response_types_supported":              []string{"code"},
				"subject_types_supported":               []string{"public"},
				"id_token_signing_alg_values_supported": []string{"RS256"},
			})
		case "/authorize":
			// The probe sends no client_id, so a 4xx is the expected answer.
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeTenantSuccess(t *testing.T) {
	srv := fakeProvider(t)

	tenant := &Tenant{Name: "test", Domain: srv.URL, ClientID: "c1"}
	if err := ProbeTenant(context.Background(), tenant, srv.Client(), testLogger()); err != nil {
		t.Fatalf("ProbeTenant returned error: %v", err)
	}
}

func TestProbeTenantIncompleteConfig(t *testing.T) {
	tenant := &Tenant{Name: "broken"}
	if err := ProbeTenant(context.Background(), tenant, nil, testLogger()); err == nil {
		t.Fatalf("expected error for incomplete tenant")
	}
}

func TestProbeTenantUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tenant := &Tenant{Name: "test", Domain: srv.URL, ClientID: "c1"}
	if err := ProbeTenant(context.Background(), tenant, srv.Client(), testLogger()); err == nil {
		t.Fatalf("expected discovery error for provider without metadata")
	}
}
