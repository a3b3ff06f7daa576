package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ProbeTenant resolves the tenant's OIDC discovery document and checks
// that the advertised endpoints match the ones the relay will call.
// A mismatch is logged rather than fatal: some providers advertise
// regional endpoint aliases that still accept the canonical paths.
func ProbeTenant(ctx context.Context, tenant *Tenant, client *http.Client, logger *slog.Logger) error {
	if !tenant.Complete() {
		return fmt.Errorf("tenant %s missing domain or client id: %w", tenant.Name, ErrConfiguration)
	}

	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, tenant.IssuerURL())
	if err != nil {
		return fmt.Errorf("discover tenant %s: %w", tenant.Name, err)
	}

	endpoint := provider.Endpoint()
	if endpoint.AuthURL != tenant.AuthorizeURL() {
		logger.Warn("advertised authorization endpoint differs",
			"tenant", tenant.Name,
			"advertised", endpoint.AuthURL,
			"expected", tenant.AuthorizeURL())
	}
	if endpoint.TokenURL != tenant.TokenURL() {
		logger.Warn("advertised token endpoint differs",
			"tenant", tenant.Name,
			"advertised", endpoint.TokenURL,
			"expected", tenant.TokenURL())
	}

	logger.Info("tenant provider reachable",
		"tenant", tenant.Name,
		"issuer", tenant.IssuerURL())
	return nil
}
