package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/l0p7/emailrep/internal/config"
	"github.com/l0p7/emailrep/internal/logging"
	"github.com/l0p7/emailrep/internal/lookup"
	"github.com/l0p7/emailrep/internal/metrics"
	"github.com/l0p7/emailrep/internal/quota"
	"github.com/l0p7/emailrep/internal/reputation"
	"github.com/l0p7/emailrep/internal/server"
	"github.com/l0p7/emailrep/internal/suppression"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "EMAILREP", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	client, err := buildReputationClient(cfg.Server.Reputation, logger)
	if err != nil {
		logger.Error("reputation client setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	quotaStore := buildQuotaStore(logger.With(slog.String("agent", "quota_factory")), cfg.Server.Quota)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := quotaStore.Close(shutdownCtx); err != nil {
			logger.Error("quota store shutdown failed", slog.Any("error", err))
		}
	}()

	metricsRecorder := metrics.NewRecorder(prometheus.NewRegistry())
	patterns := suppression.NewPatternCache(logger)

	svc, err := lookup.NewService(lookup.Options{
		Client:   client,
		Patterns: patterns,
		Quota:    quotaStore,
		Metrics:  metricsRecorder,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("lookup service setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	defaults := newDefaultOptions(cfg.Lookup)
	applyLookupDefaults(logger, defaults, patterns, cfg.Lookup)

	if len(loader.Files()) > 0 {
		watcher, err := loader.Watch(ctx, func(next config.Config) {
			logger.Info("configuration reloaded")
			applyLookupDefaults(logger, defaults, patterns, next.Lookup)
		}, func(err error) {
			if err != nil {
				logger.Error("config watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	api := &server.API{
		Service:  svc,
		Quota:    quotaStore,
		Defaults: defaults.Load,
		Logger:   logger.With(slog.String("agent", "http_api")),
	}

	srv, err := server.New(cfg, logger, server.NewHandler(api, metricsRecorder.Handler()))
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// defaultOptions holds the configured lookup options that requests override.
type defaultOptions struct {
	current atomic.Pointer[config.LookupOptions]
}

func newDefaultOptions(opts config.LookupOptions) *defaultOptions {
	d := &defaultOptions{}
	d.Store(opts)
	return d
}

func (d *defaultOptions) Load() config.LookupOptions {
	return *d.current.Load()
}

func (d *defaultOptions) Store(opts config.LookupOptions) {
	d.current.Store(&opts)
}

// applyLookupDefaults publishes opts and warms the pattern cache so the next
// batch does not pay for compilation. Invalid options are still published;
// batches using them fail with a configuration error until they are fixed.
func applyLookupDefaults(logger *slog.Logger, defaults *defaultOptions, patterns *suppression.PatternCache, opts config.LookupOptions) {
	defaults.Store(opts)
	for _, field := range config.ValidateLookupOptions(opts) {
		logger.Warn("default lookup option invalid", slog.String("field", field.Field), slog.String("message", field.Message))
	}
	if _, err := patterns.Ensure(opts.DomainBlocklistRegex); err != nil {
		logger.Debug("domain blocklist pattern not cached", slog.Any("error", err))
	}
}

func buildReputationClient(cfg config.ReputationConfig, logger *slog.Logger) (*reputation.Client, error) {
	httpClient, err := reputation.NewHTTPClient(reputation.HTTPClientOptions{
		Timeout: cfg.RequestTimeout(),
		Proxy:   cfg.Proxy,
		TLS: reputation.TLSOptions{
			CertFile:   cfg.TLS.Cert,
			KeyFile:    cfg.TLS.Key,
			Passphrase: cfg.TLS.Passphrase,
			CAFile:     cfg.TLS.CA,
		},
	})
	if err != nil {
		return nil, err
	}
	return reputation.NewClient(httpClient, reputation.ClientOptions{
		Endpoint:  cfg.Endpoint,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})
}

func buildQuotaStore(logger *slog.Logger, cfg config.QuotaConfig) quota.Store {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		if logger != nil {
			logger.Info("using memory quota store")
		}
		return quota.NewMemory()
	case "redis":
		store, err := quota.NewRedis(quota.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: quota.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err != nil {
			if logger != nil {
				logger.Error("redis quota store initialization failed", slog.Any("error", err))
				logger.Info("falling back to memory quota store")
			}
			return quota.NewMemory()
		}
		if logger != nil {
			logger.Info("using redis quota store", slog.String("address", cfg.Redis.Address))
		}
		return store
	default:
		if logger != nil {
			logger.Warn("unsupported quota backend, defaulting to memory", slog.String("backend", cfg.Backend))
		}
		return quota.NewMemory()
	}
}
