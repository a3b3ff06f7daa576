package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardcoded relay defaults
const (
	DefaultDisplayDelay    = 500 * time.Millisecond
	DefaultExchangeTimeout = 10 * time.Second
)

// DefaultAcceptedSchemes covers the Expo custom scheme plus plain HTTP
// for the cross-proxy case.
var DefaultAcceptedSchemes = []string{"exp", "http", "https"}

// Config captures the full application configuration loaded from YAML
// and environment variables.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Relay   RelayConfig    `yaml:"relay"`
	Tenants []TenantConfig `yaml:"tenants"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	PublicURL       string    `yaml:"public_url"`
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour and TLS constraints.
type TLSConfig struct {
	Domains    []string `yaml:"domains"`
	Email      string   `yaml:"email"`
	MinVersion string   `yaml:"min_version"`
}

// RelayConfig tunes the authorization relay itself. Durations are YAML
// strings in time.ParseDuration syntax.
type RelayConfig struct {
	AcceptedSchemes    []string `yaml:"accepted_schemes"`
	AllowedReturnHosts []string `yaml:"allowed_return_hosts"`
	DisplayDelay       string   `yaml:"display_delay"`
	ExchangeTimeout    string   `yaml:"exchange_timeout"`
	StateSecret        string   `yaml:"state_secret"`
}

// DisplayDelayDuration resolves the cosmetic callback delay. Zero
// disables the interstitial page entirely.
func (r RelayConfig) DisplayDelayDuration() time.Duration {
	if r.DisplayDelay == "" {
		return DefaultDisplayDelay
	}
	return parseDuration(r.DisplayDelay, DefaultDisplayDelay)
}

// ExchangeTimeoutDuration resolves the outbound token-call timeout.
func (r RelayConfig) ExchangeTimeoutDuration() time.Duration {
	if r.ExchangeTimeout == "" {
		return DefaultExchangeTimeout
	}
	return parseDuration(r.ExchangeTimeout, DefaultExchangeTimeout)
}

// Schemes returns the accepted return-URL schemes.
func (r RelayConfig) Schemes() []string {
	if len(r.AcceptedSchemes) == 0 {
		return DefaultAcceptedSchemes
	}
	return r.AcceptedSchemes
}

// TenantConfig describes one identity-provider tenant.
type TenantConfig struct {
	Name         string `yaml:"name"`
	Audience     string `yaml:"audience"`
	Domain       string `yaml:"domain"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoadConfig reads the YAML config file and merges environment
// overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		sanitized := stripYAMLComments(b)

		// Strict unmarshaling to detect unknown fields
		decoder := yaml.NewDecoder(bytes.NewReader(sanitized))
		decoder.KnownFields(true)

		if err := decoder.Decode(&cfg); err != nil {
			if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
				return Config{}, fmt.Errorf("invalid config: %w (check for typos or deprecated fields)", err)
			}
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:8080",
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			TLS: TLSConfig{
				Domains:    []string{"localhost"},
				Email:      "",
				MinVersion: "1.2",
			},
		},
		Relay: RelayConfig{
			AcceptedSchemes: append([]string(nil), DefaultAcceptedSchemes...),
			DisplayDelay:    DefaultDisplayDelay.String(),
			ExchangeTimeout: DefaultExchangeTimeout.String(),
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func stripYAMLComments(in []byte) []byte {
	lines := bytes.Split(in, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		trim := bytes.TrimLeft(line, " \t")
		if len(trim) > 0 && trim[0] == '#' {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"AUTHRELAYD_SERVER_PUBLIC_URL":          func(v string) { cfg.Server.PublicURL = v },
		"AUTHRELAYD_SERVER_DEV_LISTEN_ADDR":     func(v string) { cfg.Server.DevListenAddr = v },
		"AUTHRELAYD_SERVER_HTTP_LISTEN_ADDR":    func(v string) { cfg.Server.HTTPListenAddr = v },
		"AUTHRELAYD_SERVER_HTTPS_LISTEN_ADDR":   func(v string) { cfg.Server.HTTPSListenAddr = v },
		"AUTHRELAYD_SERVER_DEV_MODE":            func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"AUTHRELAYD_SERVER_TLS_DOMAINS":         func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"AUTHRELAYD_SERVER_TLS_EMAIL":           func(v string) { cfg.Server.TLS.Email = v },
		"AUTHRELAYD_RELAY_ACCEPTED_SCHEMES":     func(v string) { cfg.Relay.AcceptedSchemes = splitAndTrim(v) },
		"AUTHRELAYD_RELAY_ALLOWED_RETURN_HOSTS": func(v string) { cfg.Relay.AllowedReturnHosts = splitAndTrim(v) },
		"AUTHRELAYD_RELAY_DISPLAY_DELAY":        func(v string) { cfg.Relay.DisplayDelay = v },
		"AUTHRELAYD_RELAY_EXCHANGE_TIMEOUT":     func(v string) { cfg.Relay.ExchangeTimeout = v },
		"AUTHRELAYD_RELAY_STATE_SECRET":         func(v string) { cfg.Relay.StateSecret = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}

	// Tenant secrets are commonly injected via the environment so the
	// YAML file stays free of credentials.
	for i := range cfg.Tenants {
		key := "AUTHRELAYD_TENANT_" + envKey(cfg.Tenants[i].Name) + "_CLIENT_SECRET"
		if val, ok := os.LookupEnv(key); ok {
			cfg.Tenants[i].ClientSecret = val
		}
	}
}

func envKey(name string) string {
	up := strings.ToUpper(name)
	up = strings.ReplaceAll(up, "-", "_")
	return strings.ReplaceAll(up, ".", "_")
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs sanity checks on the config. Incomplete tenant
// credentials are warned about rather than rejected: the affected
// surfaces answer with a configuration error at request time instead of
// preventing the rest of the relay from starting.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if !strings.HasPrefix(c.Server.PublicURL, "http://") && !strings.HasPrefix(c.Server.PublicURL, "https://") {
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		return errors.New("server.tls.domains must be provided in production")
	}

	if c.Server.TLS.MinVersion != "" {
		validVersions := map[string]bool{"1.2": true, "1.3": true}
		if !validVersions[c.Server.TLS.MinVersion] {
			return fmt.Errorf("server.tls.min_version must be '1.2' or '1.3', got: %s", c.Server.TLS.MinVersion)
		}
	}

	if len(c.Tenants) == 0 {
		return errors.New("at least one tenant must be configured")
	}
	if _, err := NewTenantRegistry(c.Tenants); err != nil {
		return err
	}
	for i, t := range c.Tenants {
		if t.Domain == "" || t.ClientID == "" {
			slog.Warn("tenant configuration incomplete, requests for it will fail",
				"index", i, "tenant", t.Name,
				"has_domain", t.Domain != "",
				"has_client_id", t.ClientID != "")
		}
	}

	if c.Relay.DisplayDelay != "" {
		if _, err := time.ParseDuration(c.Relay.DisplayDelay); err != nil {
			return fmt.Errorf("relay.display_delay: %w", err)
		}
	}
	if c.Relay.ExchangeTimeout != "" {
		if _, err := time.ParseDuration(c.Relay.ExchangeTimeout); err != nil {
			return fmt.Errorf("relay.exchange_timeout: %w", err)
		}
	}
	for _, s := range c.Relay.Schemes() {
		if s == "" || strings.ContainsAny(s, ":/ ") {
			return fmt.Errorf("relay.accepted_schemes: %q is not a URL scheme", s)
		}
	}

	return nil
}
