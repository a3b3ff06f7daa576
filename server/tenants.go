package server

import (
	"errors"
	"fmt"
)

// Resolver failure modes. Handlers map these onto user-visible errors;
// the registry itself never guesses or falls back silently.
var (
	ErrUnknownAudience  = errors.New("unknown audience")
	ErrAudienceRequired = errors.New("audience required")
)

// TenantRegistry resolves audience identifiers to configured tenants.
// It is built once from configuration and read-only afterwards.
type TenantRegistry struct {
	tenants []Tenant
}

// NewTenantRegistry validates and indexes the configured tenants.
func NewTenantRegistry(cfgs []TenantConfig) (*TenantRegistry, error) {
	seen := make(map[string]string, len(cfgs))
	tenants := make([]Tenant, 0, len(cfgs))

	for i, tc := range cfgs {
		name := tc.Name
		if name == "" {
			name = fmt.Sprintf("tenant-%d", i)
		}
		if len(cfgs) > 1 && tc.Audience == "" {
			return nil, fmt.Errorf("tenants[%d] (%s): audience is required when multiple tenants are configured", i, name)
		}
		if prev, dup := seen[tc.Audience]; dup {
			return nil, fmt.Errorf("tenants[%d] (%s): audience %q already used by %s", i, name, tc.Audience, prev)
		}
		seen[tc.Audience] = name

		tenants = append(tenants, Tenant{
			Name:         name,
			Audience:     tc.Audience,
			Domain:       tc.Domain,
			ClientID:     tc.ClientID,
			ClientSecret: tc.ClientSecret,
		})
	}

	return &TenantRegistry{tenants: tenants}, nil
}

// Resolve returns the tenant matching the audience exactly. When no
// audience is supplied and exactly one tenant is configured, that tenant
// acts as the default.
func (r *TenantRegistry) Resolve(audience string) (*Tenant, error) {
	if audience == "" {
		if len(r.tenants) == 1 {
			return &r.tenants[0], nil
		}
		if len(r.tenants) == 0 {
			return nil, ErrUnknownAudience
		}
		return nil, ErrAudienceRequired
	}

	for i := range r.tenants {
		if r.tenants[i].Audience == audience {
			return &r.tenants[i], nil
		}
	}
	return nil, ErrUnknownAudience
}

// Tenants returns the configured tenants in declaration order.
func (r *TenantRegistry) Tenants() []Tenant {
	return r.tenants
}

// Len reports the number of configured tenants.
func (r *TenantRegistry) Len() int {
	return len(r.tenants)
}
