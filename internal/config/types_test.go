package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate  func(cfg *Config)
		wantErr bool
	}{
		"defaults":          {mutate: func(*Config) {}},
		"bad port":          {mutate: func(cfg *Config) { cfg.Server.Listen.Port = 70000 }, wantErr: true},
		"relative endpoint": {mutate: func(cfg *Config) { cfg.Server.Reputation.Endpoint = "/v1" }, wantErr: true},
		"bad timeout":       {mutate: func(cfg *Config) { cfg.Server.Reputation.Timeout = "soon" }, wantErr: true},
		"negative timeout":  {mutate: func(cfg *Config) { cfg.Server.Reputation.Timeout = "-1s" }, wantErr: true},
		"bad proxy":         {mutate: func(cfg *Config) { cfg.Server.Reputation.Proxy = "::" }, wantErr: true},
		"cert without key":  {mutate: func(cfg *Config) { cfg.Server.Reputation.TLS.Cert = "cert.pem" }, wantErr: true},
		"redis no address":  {mutate: func(cfg *Config) { cfg.Server.Quota.Backend = "redis" }, wantErr: true},
		"unknown backend":   {mutate: func(cfg *Config) { cfg.Server.Quota.Backend = "memcached" }, wantErr: true},
		"redis with address": {mutate: func(cfg *Config) {
			cfg.Server.Quota.Backend = "redis"
			cfg.Server.Quota.Redis.Address = "127.0.0.1:6379"
		}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	require.Error(t, cfg.Validate())
}

func TestRequestTimeout(t *testing.T) {
	require.Equal(t, defaultRequestTimeout, ReputationConfig{}.RequestTimeout())
	require.Equal(t, 2*time.Second, ReputationConfig{Timeout: "2s"}.RequestTimeout())
	require.Equal(t, defaultRequestTimeout, ReputationConfig{Timeout: "nope"}.RequestTimeout())
}

func TestBlocklistSet(t *testing.T) {
	set := LookupOptions{Blocklist: " A@Example.com ,, b@other.com,"}.BlocklistSet()
	require.Equal(t, map[string]struct{}{"a@example.com": {}, "b@other.com": {}}, set)
	require.Empty(t, LookupOptions{}.BlocklistSet())
}

func TestMerge(t *testing.T) {
	base := LookupOptions{APIKey: "base", Blocklist: "a@example.com", DomainBlocklistRegex: "x", FailFast: true}

	override := "override"
	merged := base.Merge(LookupOverrides{APIKey: &override})
	require.Equal(t, "override", merged.APIKey)
	require.Equal(t, "a@example.com", merged.Blocklist)
	require.Equal(t, "x", merged.DomainBlocklistRegex)
	require.True(t, merged.FailFast)

	require.Equal(t, base, base.Merge(LookupOverrides{}))
}

func TestMergeClearsDefaults(t *testing.T) {
	base := LookupOptions{APIKey: "base", Blocklist: "a@example.com", DomainBlocklistRegex: "x", FailFast: true}

	var overrides LookupOverrides
	require.NoError(t, json.Unmarshal([]byte(`{"blocklist":"","domainBlocklistRegex":"","failFast":false}`), &overrides))
	merged := base.Merge(overrides)
	require.Equal(t, "base", merged.APIKey)
	require.Empty(t, merged.Blocklist)
	require.Empty(t, merged.DomainBlocklistRegex)
	require.False(t, merged.FailFast)
}

func TestValidateLookupOptions(t *testing.T) {
	require.Empty(t, ValidateLookupOptions(LookupOptions{APIKey: "key", DomainBlocklistRegex: `bad\.com$`}))

	errs := ValidateLookupOptions(LookupOptions{APIKey: "  ", DomainBlocklistRegex: "("})
	require.Len(t, errs, 2)
	require.Equal(t, "apiKey", errs[0].Field)
	require.Equal(t, "You must provide a valid API key", errs[0].Message)
	require.Equal(t, "domainBlocklistRegex", errs[1].Field)

	err := &ConfigurationError{Fields: errs}
	require.Contains(t, err.Error(), "apiKey")
	require.Contains(t, err.Error(), "domainBlocklistRegex")
}

func TestValidateAPIKey(t *testing.T) {
	require.Empty(t, ValidateAPIKey(LookupOptions{APIKey: "key", DomainBlocklistRegex: "("}))
	errs := ValidateAPIKey(LookupOptions{APIKey: " "})
	require.Len(t, errs, 1)
	require.Equal(t, "apiKey", errs[0].Field)
}
