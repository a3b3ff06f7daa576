package server

// StateBundle is the opaque context threaded through the provider's
// state parameter. The provider carries it unmodified; the relay is the
// only party that reads it. Field names are part of the wire format.
type StateBundle struct {
	// State is the caller-supplied correlation token, echoed back verbatim
	// on the final redirect.
	State string `json:"state,omitempty"`
	// ReturnURL is the absolute URI the token-bearing redirect targets,
	// usually the mobile app's custom scheme.
	ReturnURL string `json:"returnUrl,omitempty"`
	// CodeVerifier is present only for PKCE flows. It never reaches the
	// provider except as its hashed code_challenge.
	CodeVerifier string `json:"codeVerifier,omitempty"`
	// Audience selects the tenant that authorized the request.
	Audience string `json:"audience,omitempty"`
	// ReturnTo is the forwarding target used by the cross-proxy leg.
	ReturnTo string `json:"returnTo,omitempty"`
}

// TokenSet is the result of a successful code exchange. Exactly these
// fields are forwarded to the caller; anything else the provider returns
// is dropped.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Tenant is one configured identity-provider environment. Loaded once at
// startup and immutable afterwards.
type Tenant struct {
	Name         string
	Audience     string
	Domain       string
	ClientID     string
	ClientSecret string
}

// Complete reports whether the tenant carries enough configuration to
// build an authorization request.
func (t *Tenant) Complete() bool {
	return t != nil && t.Domain != "" && t.ClientID != ""
}

// BaseURL returns the tenant's provider origin. A bare domain is assumed
// to be HTTPS; an explicit scheme (used by tests and local providers) is
// kept as-is.
func (t *Tenant) BaseURL() string {
	if t.Domain == "" {
		return ""
	}
	if hasScheme(t.Domain) {
		return trimTrailingSlash(t.Domain)
	}
	return "https://" + trimTrailingSlash(t.Domain)
}

// AuthorizeURL returns the provider's authorization endpoint.
func (t *Tenant) AuthorizeURL() string {
	return t.BaseURL() + "/authorize"
}

// TokenURL returns the provider's token endpoint.
func (t *Tenant) TokenURL() string {
	return t.BaseURL() + "/oauth/token"
}

// IssuerURL returns the provider's OIDC issuer, used for discovery.
// Auth0-style issuers carry a trailing slash.
func (t *Tenant) IssuerURL() string {
	return t.BaseURL() + "/"
}

func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ':':
			return i > 0 && len(s) > i+2 && s[i+1] == '/' && s[i+2] == '/'
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return false
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
