package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// ErrConfiguration marks failures caused by incomplete server-side
// configuration rather than caller input. Handlers surface it as a
// generic 500 so that the missing credential is never disclosed.
var ErrConfiguration = errors.New("server configuration error")

// ExchangeRequest carries the inputs for one authorization-code
// exchange.
type ExchangeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	Audience     string `json:"audience,omitempty"`
}

// ExchangeError preserves the provider's verdict on a failed exchange.
// Status mirrors the upstream HTTP status so callers can distinguish
// invalid_grant from rate limiting.
type ExchangeError struct {
	Status      int
	Code        string
	Description string
}

func (e *ExchangeError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token exchange failed (%d): %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("token exchange failed (%d): %s", e.Status, e.Code)
}

// Detail returns the most specific upstream error text available.
func (e *ExchangeError) Detail() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Code != "" {
		return e.Code
	}
	return "unknown error"
}

// TokenExchanger performs the server-to-server code exchange against the
// provider's token endpoint. It exists so that a confidential client
// secret never reaches the browser. Exactly one outbound call per
// invocation, no retries: authorization codes are single-use.
type TokenExchanger struct {
	tenants   *TenantRegistry
	publicURL string
	client    *http.Client
	logger    *slog.Logger
}

// NewTokenExchanger wires an exchanger against the tenant registry.
func NewTokenExchanger(cfg Config, tenants *TenantRegistry, logger *slog.Logger) *TokenExchanger {
	return &TokenExchanger{
		tenants:   tenants,
		publicURL: strings.TrimSuffix(cfg.Server.PublicURL, "/"),
		client:    &http.Client{Timeout: cfg.Relay.ExchangeTimeoutDuration()},
		logger:    logger,
	}
}

// RedirectURI returns the callback address registered with the provider.
// The token request must repeat it exactly.
func (x *TokenExchanger) RedirectURI() string {
	return x.publicURL + "/callback"
}

// Exchange resolves the tenant, picks the exchange mode, and posts the
// authorization code to the provider. A supplied code verifier takes
// precedence over a configured client secret; with neither, the exchange
// cannot proceed securely and fails before any network I/O.
func (x *TokenExchanger) Exchange(ctx context.Context, req ExchangeRequest) (TokenSet, error) {
	if req.Code == "" {
		return TokenSet{}, errors.New("code is required")
	}

	tenant, err := x.tenants.Resolve(req.Audience)
	if err != nil {
		return TokenSet{}, err
	}
	if !tenant.Complete() {
		x.logger.Error("tenant configuration incomplete",
			"tenant", tenant.Name,
			"has_domain", tenant.Domain != "",
			"has_client_id", tenant.ClientID != "")
		return TokenSet{}, fmt.Errorf("tenant %s missing domain or client id: %w", tenant.Name, ErrConfiguration)
	}

	body := map[string]string{
		"grant_type":   "authorization_code",
		"client_id":    tenant.ClientID,
		"code":         req.Code,
		"redirect_uri": x.RedirectURI(),
	}
	switch {
	case req.CodeVerifier != "":
		body["code_verifier"] = req.CodeVerifier
	case tenant.ClientSecret != "":
		body["client_secret"] = tenant.ClientSecret
	default:
		x.logger.Error("no exchange credential available", "tenant", tenant.Name)
		return TokenSet{}, fmt.Errorf("tenant %s has neither code verifier nor client secret: %w", tenant.Name, ErrConfiguration)
	}
	if tenant.Audience != "" {
		body["audience"] = tenant.Audience
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return TokenSet{}, fmt.Errorf("marshal token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tenant.TokenURL(), bytes.NewReader(payload))
	if err != nil {
		return TokenSet{}, fmt.Errorf("create token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := x.client.Do(httpReq)
	if err != nil {
		return TokenSet{}, fmt.Errorf("call token endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenSet{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var upstream struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.Unmarshal(raw, &upstream)
		exchErr := &ExchangeError{
			Status:      resp.StatusCode,
			Code:        upstream.Error,
			Description: upstream.ErrorDescription,
		}
		x.logger.Warn("token exchange rejected",
			"tenant", tenant.Name,
			"status", resp.StatusCode,
			"error", exchErr.Code)
		return TokenSet{}, exchErr
	}

	var tokens TokenSet
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return TokenSet{}, fmt.Errorf("parse token response: %w", err)
	}

	x.logger.Info("token exchange succeeded",
		"tenant", tenant.Name,
		"has_id_token", tokens.IDToken != "",
		"has_refresh_token", tokens.RefreshToken != "")
	return tokens, nil
}
