package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// relayScopes is the fixed scope set requested from the provider.
// offline_access asks for a refresh token the mobile app can keep.
var relayScopes = []string{oidc.ScopeOpenID, "profile", "email", "offline_access"}

// Exchanger abstracts the server-side token exchange so the callback
// surface can be exercised without a live provider.
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (TokenSet, error)
}

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config    Config
	Logger    *slog.Logger
	Tenants   *TenantRegistry
	States    *StateCodec
	Exchanger Exchanger
}

// NewApp wires together the application state from configuration.
func NewApp(cfg Config, logger *slog.Logger) (*App, error) {
	tenants, err := NewTenantRegistry(cfg.Tenants)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Tenants: tenants,
		States:  NewStateCodec(cfg.Relay.StateSecret),
	}
	app.Exchanger = NewTokenExchanger(cfg, tenants, logger)
	return app, nil
}

// CallbackURL is the redirect_uri registered with the provider. The
// token request must repeat it exactly.
func (a *App) CallbackURL() string {
	return strings.TrimSuffix(a.Config.Server.PublicURL, "/") + "/callback"
}

// handleAuth initiates the authorization flow: it validates the inbound
// request, resolves the tenant, prepares PKCE material when the tenant
// has no shared secret, and redirects to the provider with the state
// bundle attached. The redirect is a full-page navigation; once issued
// there is no way back except the provider calling /callback.
func (a *App) handleAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	returnURL := q.Get("returnUrl")
	callerState := q.Get("state")
	audience := q.Get("audience")

	if returnURL == "" || callerState == "" {
		renderErrorPage(w, http.StatusBadRequest,
			"Missing required parameters (returnUrl or state)",
			"Expected URL format: /auth?returnUrl=exp://...&state=xxx")
		return
	}
	if !acceptedScheme(returnURL, a.Config.Relay.Schemes()) {
		a.Logger.Warn("rejected return url", "return_url", returnURL)
		renderErrorPage(w, http.StatusBadRequest,
			"returnUrl does not use an accepted scheme", "")
		return
	}

	tenant, err := a.Tenants.Resolve(audience)
	if err != nil {
		a.Logger.Warn("audience resolution failed", "audience", audience, "error", err)
		renderErrorPage(w, http.StatusBadRequest,
			"Invalid audience: the requested audience is not supported", "")
		return
	}
	if !tenant.Complete() {
		a.Logger.Error("tenant configuration incomplete", "tenant", tenant.Name)
		renderErrorPage(w, http.StatusInternalServerError,
			"Server configuration error",
			"Please contact the operator of this service")
		return
	}

	bundle := StateBundle{
		State:     callerState,
		ReturnURL: returnURL,
		Audience:  tenant.Audience,
	}

	var challenge string
	if tenant.ClientSecret == "" {
		pkce, err := GeneratePKCE(DefaultVerifierLength)
		if err != nil {
			a.Logger.Error("pkce generation failed", "error", err)
			renderErrorPage(w, http.StatusInternalServerError,
				"Server configuration error", "")
			return
		}
		bundle.CodeVerifier = pkce.Verifier
		challenge = pkce.Challenge
	}

	encodedState, err := a.States.Encode(bundle)
	if err != nil {
		a.Logger.Error("state encode failed", "error", err)
		renderErrorPage(w, http.StatusInternalServerError,
			"Server configuration error", "")
		return
	}

	a.Logger.Info("authorization initiated",
		"tenant", tenant.Name,
		"pkce", challenge != "",
		"return_scheme", schemeOf(returnURL))
	http.Redirect(w, r, a.authCodeURL(tenant, challenge, encodedState), http.StatusFound)
}

// authCodeURL constructs the provider authorization URL.
func (a *App) authCodeURL(tenant *Tenant, challenge, state string) string {
	conf := &oauth2.Config{
		ClientID:    tenant.ClientID,
		RedirectURL: a.CallbackURL(),
		Scopes:      relayScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   tenant.AuthorizeURL(),
			TokenURL:  tenant.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	opts := []oauth2.AuthCodeOption{}
	if tenant.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", tenant.Audience))
	}
	if challenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", challenge),
			oauth2.SetAuthURLParam("code_challenge_method", MethodS256),
		)
	}
	return conf.AuthCodeURL(state, opts...)
}

// handleCallback receives the provider's redirect, recovers the state
// bundle, performs the exchange server-side, and forwards the tokens to
// the mobile client's return URL.
func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if provErr := q.Get("error"); provErr != "" {
		desc := q.Get("error_description")
		a.Logger.Warn("provider returned error", "error", provErr, "description", desc)
		msg := "Provider error: " + provErr
		if desc != "" {
			msg += ": " + desc
		}
		renderErrorPage(w, http.StatusBadRequest, msg, "")
		return
	}

	code := q.Get("code")
	rawState := q.Get("state")
	if code == "" || rawState == "" {
		// The provider redirect can land before its query parameters do
		// in some in-app browsers. Not an error yet.
		renderWaitingPage(w)
		return
	}

	bundle, err := a.States.Decode(rawState)
	if err != nil {
		a.Logger.Warn("state decode failed", "error", err)
		renderErrorPage(w, http.StatusInternalServerError, "Invalid state parameter", "")
		return
	}
	if bundle.ReturnURL == "" {
		renderErrorPage(w, http.StatusBadRequest, "Missing returnUrl in state", "")
		return
	}
	if !acceptedScheme(bundle.ReturnURL, a.Config.Relay.Schemes()) {
		a.Logger.Warn("rejected return url from state", "return_url", bundle.ReturnURL)
		renderErrorPage(w, http.StatusBadRequest,
			"returnUrl does not use an accepted scheme", "")
		return
	}

	tokens, err := a.Exchanger.Exchange(r.Context(), ExchangeRequest{
		Code:         code,
		CodeVerifier: bundle.CodeVerifier,
		Audience:     bundle.Audience,
	})
	if err != nil {
		status, msg := exchangeFailure(err)
		a.Logger.Error("callback exchange failed", "error", err)
		renderErrorPage(w, status, msg, "")
		return
	}
	if tokens.AccessToken == "" {
		renderErrorPage(w, http.StatusBadGateway,
			"No access token received from token exchange", "")
		return
	}

	target, err := tokenRedirectTarget(bundle, tokens)
	if err != nil {
		a.Logger.Error("build return url", "error", err)
		renderErrorPage(w, http.StatusBadRequest, "Invalid returnUrl in state", "")
		return
	}

	a.Logger.Info("callback complete", "return_scheme", schemeOf(bundle.ReturnURL))
	if delay := a.Config.Relay.DisplayDelayDuration(); delay > 0 {
		renderRedirectPage(w, target, delay)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// tokenRedirectTarget appends the token set and the original caller
// state to the return URL.
func tokenRedirectTarget(bundle StateBundle, tokens TokenSet) (string, error) {
	target, err := url.Parse(bundle.ReturnURL)
	if err != nil {
		return "", fmt.Errorf("parse returnUrl: %w", err)
	}
	v := target.Query()
	v.Set("access_token", tokens.AccessToken)
	if tokens.IDToken != "" {
		v.Set("id_token", tokens.IDToken)
	}
	if tokens.RefreshToken != "" {
		v.Set("refresh_token", tokens.RefreshToken)
	}
	v.Set("state", bundle.State)
	target.RawQuery = v.Encode()
	return target.String(), nil
}

// handleTokenExchange is the JSON API around the exchanger, for clients
// that receive the authorization code themselves (e.g. via /auth-proxy).
func (a *App) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}
	if req.Code == "" {
		writeJSONError(w, http.StatusBadRequest, apiError{Error: "code is required"})
		return
	}

	tokens, err := a.Exchanger.Exchange(r.Context(), req)
	if err != nil {
		a.Logger.Warn("token exchange failed", "error", err)
		var exchErr *ExchangeError
		switch {
		case errors.As(err, &exchErr):
			writeJSONError(w, exchErr.Status, apiError{
				Error:   "token exchange failed",
				Details: exchErr.Detail(),
				Status:  exchErr.Status,
			})
		case errors.Is(err, ErrUnknownAudience), errors.Is(err, ErrAudienceRequired):
			writeJSONError(w, http.StatusBadRequest, apiError{Error: "invalid audience"})
		case errors.Is(err, ErrConfiguration):
			writeJSONError(w, http.StatusInternalServerError, apiError{Error: "server configuration error"})
		default:
			writeJSONError(w, http.StatusInternalServerError, apiError{Error: "token exchange failed"})
		}
		return
	}

	writeJSON(w, tokens)
}

// handleAuthProxy forwards a code+state pair to the origin embedded in
// the state bundle. It runs at the address registered with the provider
// when the final consumer lives elsewhere. Only http(s) targets are
// accepted, and a malformed request gets an error response rather than
// a redirect.
func (a *App) handleAuthProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if provErr := q.Get("error"); provErr != "" {
		writeJSONError(w, http.StatusBadRequest, apiError{
			Error:   provErr,
			Details: q.Get("error_description"),
		})
		return
	}

	code := q.Get("code")
	rawState := q.Get("state")
	if code == "" || rawState == "" {
		writeJSONError(w, http.StatusBadRequest, apiError{Error: "missing code or state"})
		return
	}

	bundle, err := a.States.Decode(rawState)
	if err != nil {
		a.Logger.Warn("proxy state decode failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, apiError{Error: "invalid state parameter"})
		return
	}
	if bundle.ReturnTo == "" {
		writeJSONError(w, http.StatusBadRequest, apiError{Error: "missing returnTo"})
		return
	}
	if !acceptedScheme(bundle.ReturnTo, []string{"http", "https"}) ||
		!hostAllowed(bundle.ReturnTo, a.Config.Relay.AllowedReturnHosts) {
		a.Logger.Warn("rejected proxy target", "return_to", bundle.ReturnTo)
		writeJSONError(w, http.StatusBadRequest, apiError{Error: "invalid returnTo"})
		return
	}

	target, err := url.Parse(bundle.ReturnTo)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, apiError{Error: "invalid returnTo"})
		return
	}
	v := target.Query()
	v.Set("code", code)
	v.Set("state", rawState)
	target.RawQuery = v.Encode()

	a.Logger.Info("proxy forwarding", "target_host", target.Host)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// apiError is the JSON error body of the API surfaces. Status repeats
// the upstream provider status when the failure came from the provider.
type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// exchangeFailure maps an exchange error onto a browser-facing status
// and message. Configuration problems stay generic so the missing
// credential is not disclosed.
func exchangeFailure(err error) (int, string) {
	var exchErr *ExchangeError
	switch {
	case errors.As(err, &exchErr):
		return exchErr.Status, "Token exchange failed: " + exchErr.Detail()
	case errors.Is(err, ErrUnknownAudience), errors.Is(err, ErrAudienceRequired):
		return http.StatusBadRequest, "Invalid audience: the requested audience is not supported"
	case errors.Is(err, ErrConfiguration):
		return http.StatusInternalServerError, "Server configuration error"
	default:
		return http.StatusInternalServerError, "Token exchange failed"
	}
}

func schemeOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Scheme
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, body apiError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
