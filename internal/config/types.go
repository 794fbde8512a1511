package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the server bootstrap options plus the default lookup options
// applied when a caller does not override them.
type Config struct {
	Server ServerConfig  `koanf:"server"`
	Lookup LookupOptions `koanf:"lookup"`
}

// ServerConfig collects the knobs owned by the host process.
type ServerConfig struct {
	Listen     ListenConfig     `koanf:"listen"`
	Logging    LoggingConfig    `koanf:"logging"`
	Reputation ReputationConfig `koanf:"reputation"`
	Quota      QuotaConfig      `koanf:"quota"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ReputationConfig describes how the outbound client reaches the reputation service.
type ReputationConfig struct {
	Endpoint  string              `koanf:"endpoint"`
	Timeout   string              `koanf:"timeout"`
	UserAgent string              `koanf:"userAgent"`
	Proxy     string              `koanf:"proxy"`
	TLS       ReputationTLSConfig `koanf:"tls"`
}

// ReputationTLSConfig points at optional PEM material. Empty strings are ignored.
type ReputationTLSConfig struct {
	Cert       string `koanf:"cert"`
	Key        string `koanf:"key"`
	Passphrase string `koanf:"passphrase"`
	CA         string `koanf:"ca"`
}

type QuotaConfig struct {
	Backend string           `koanf:"backend"`
	Redis   QuotaRedisConfig `koanf:"redis"`
}

type QuotaRedisConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      QuotaTLSConfig `koanf:"tls"`
}

type QuotaTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// LookupOptions is the per-invocation configuration of a batch. It is read
// fresh on every call and never mutated by the lookup service.
type LookupOptions struct {
	APIKey               string `koanf:"apiKey" json:"apiKey"`
	Blocklist            string `koanf:"blocklist" json:"blocklist"`
	DomainBlocklistRegex string `koanf:"domainBlocklistRegex" json:"domainBlocklistRegex"`
	FailFast             bool   `koanf:"failFast" json:"failFast"`
}

// BlocklistSet splits the comma-delimited blocklist into a lower-cased set.
func (o LookupOptions) BlocklistSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, item := range strings.Split(o.Blocklist, ",") {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}
	return set
}

// LookupOverrides carries per-request option overrides. A nil field keeps the
// configured default; a present field replaces it even when empty or false, so
// callers can clear a default pattern or turn fail-fast off.
type LookupOverrides struct {
	APIKey               *string `json:"apiKey"`
	Blocklist            *string `json:"blocklist"`
	DomainBlocklistRegex *string `json:"domainBlocklistRegex"`
	FailFast             *bool   `json:"failFast"`
}

// Merge overlays the fields present in override onto o.
func (o LookupOptions) Merge(override LookupOverrides) LookupOptions {
	merged := o
	if override.APIKey != nil {
		merged.APIKey = *override.APIKey
	}
	if override.Blocklist != nil {
		merged.Blocklist = *override.Blocklist
	}
	if override.DomainBlocklistRegex != nil {
		merged.DomainBlocklistRegex = *override.DomainBlocklistRegex
	}
	if override.FailFast != nil {
		merged.FailFast = *override.FailFast
	}
	return merged
}

const defaultRequestTimeout = 10 * time.Second

// RequestTimeout parses the configured timeout, falling back to the default
// when it is empty or unparsable. Validate rejects unparsable values before
// this is reached in practice.
func (c ReputationConfig) RequestTimeout() time.Duration {
	if strings.TrimSpace(c.Timeout) == "" {
		return defaultRequestTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultRequestTimeout
	}
	return d
}

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	rep := c.Server.Reputation
	endpoint, err := url.Parse(strings.TrimSpace(rep.Endpoint))
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return fmt.Errorf("config: server.reputation.endpoint invalid: %q", rep.Endpoint)
	}
	if strings.TrimSpace(rep.Timeout) != "" {
		d, err := time.ParseDuration(rep.Timeout)
		if err != nil {
			return fmt.Errorf("config: server.reputation.timeout invalid: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config: server.reputation.timeout must be positive: %s", rep.Timeout)
		}
	}
	if proxy := strings.TrimSpace(rep.Proxy); proxy != "" {
		if parsed, err := url.Parse(proxy); err != nil || parsed.Host == "" {
			return fmt.Errorf("config: server.reputation.proxy invalid: %q", rep.Proxy)
		}
	}
	if (rep.TLS.Cert == "") != (rep.TLS.Key == "") {
		return errors.New("config: server.reputation.tls cert and key must be provided together")
	}
	backend := strings.TrimSpace(strings.ToLower(c.Server.Quota.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Server.Quota.Redis.Address) == "" {
			return errors.New("config: server.quota.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: server.quota.backend unsupported: %s", c.Server.Quota.Backend)
	}
	return nil
}

// DefaultConfig returns the baseline values.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Reputation: ReputationConfig{
				Endpoint:  "https://emailrep.io",
				Timeout:   defaultRequestTimeout.String(),
				UserAgent: "Polarity",
			},
			Quota: QuotaConfig{
				Backend: "memory",
			},
		},
	}
}
