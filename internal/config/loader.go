package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator for the given env prefix and files.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Files lists the non-empty configuration file paths the loader reads.
func (l *Loader) Files() []string {
	out := make([]string, 0, len(l.files))
	for _, path := range l.files {
		if path != "" {
			out = append(out, path)
		}
	}
	return out
}

// Load assembles the effective snapshot.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.Files() {
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserForFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.reputation.useragent":   "server.reputation.userAgent",
			"server.quota.redis.tls.cafile": "server.quota.redis.tls.caFile",
			"lookup.apikey":                 "lookup.apiKey",
			"lookup.domainblocklistregex":   "lookup.domainBlocklistRegex",
			"lookup.failfast":               "lookup.failFast",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserForFile(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported config file extension %s", ext)
	}
}

func isSupportedConfigFile(path string) bool {
	_, err := parserForFile(path)
	return err == nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"reputation": map[string]any{
				"endpoint":  cfg.Server.Reputation.Endpoint,
				"timeout":   cfg.Server.Reputation.Timeout,
				"userAgent": cfg.Server.Reputation.UserAgent,
				"proxy":     cfg.Server.Reputation.Proxy,
				"tls": map[string]any{
					"cert":       cfg.Server.Reputation.TLS.Cert,
					"key":        cfg.Server.Reputation.TLS.Key,
					"passphrase": cfg.Server.Reputation.TLS.Passphrase,
					"ca":         cfg.Server.Reputation.TLS.CA,
				},
			},
			"quota": map[string]any{
				"backend": cfg.Server.Quota.Backend,
				"redis": map[string]any{
					"address":  cfg.Server.Quota.Redis.Address,
					"username": cfg.Server.Quota.Redis.Username,
					"password": cfg.Server.Quota.Redis.Password,
					"db":       cfg.Server.Quota.Redis.DB,
					"tls": map[string]any{
						"enabled": cfg.Server.Quota.Redis.TLS.Enabled,
						"caFile":  cfg.Server.Quota.Redis.TLS.CAFile,
					},
				},
			},
		},
		"lookup": map[string]any{
			"apiKey":               cfg.Lookup.APIKey,
			"blocklist":            cfg.Lookup.Blocklist,
			"domainBlocklistRegex": cfg.Lookup.DomainBlocklistRegex,
			"failFast":             cfg.Lookup.FailFast,
		},
	}
}
