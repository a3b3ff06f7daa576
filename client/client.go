// Package client is a small helper for programs that consume the
// relay's token-exchange API, such as backends that received an
// authorization code through the cross-proxy leg.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSet mirrors the relay's exchange response.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// APIError is a non-2xx answer from the relay. Status is the HTTP
// status the relay responded with, which mirrors the provider's status
// for upstream failures.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("relay returned %d: %s: %s", e.Status, e.Code, e.Details)
	}
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Code)
}

// Client calls a running relay instance.
type Client struct {
	// BaseURL is the relay's public origin, e.g. https://relay.example.com.
	BaseURL string
	// HTTPClient overrides the default client when set.
	HTTPClient *http.Client
}

// New returns a client for the given relay origin.
func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// ExchangeCode swaps an authorization code for a token set via the
// relay's /token-exchange endpoint. codeVerifier and audience may be
// empty, matching the relay's own rules for choosing the exchange mode.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier, audience string) (TokenSet, error) {
	if code == "" {
		return TokenSet{}, fmt.Errorf("code is required")
	}

	payload, err := json.Marshal(map[string]string{
		"code":          code,
		"code_verifier": codeVerifier,
		"audience":      audience,
	})
	if err != nil {
		return TokenSet{}, fmt.Errorf("marshal exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/token-exchange", bytes.NewReader(payload))
	if err != nil {
		return TokenSet{}, fmt.Errorf("create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return TokenSet{}, fmt.Errorf("call relay: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenSet{}, fmt.Errorf("read relay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Code = "unexpected response"
		}
		return TokenSet{}, apiErr
	}

	var tokens TokenSet
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return TokenSet{}, fmt.Errorf("parse relay response: %w", err)
	}
	return tokens, nil
}
