package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/l0p7/emailrep/internal/config"
	"github.com/l0p7/emailrep/internal/entity"
	"github.com/l0p7/emailrep/internal/metrics"
	"github.com/l0p7/emailrep/internal/quota"
	"github.com/l0p7/emailrep/internal/reputation"
	"github.com/l0p7/emailrep/internal/suppression"
)

// Reputation performs a single classified lookup.
type Reputation interface {
	Lookup(ctx context.Context, id entity.Identifier, apiKey string) reputation.Outcome
}

// Options wires a Service. Only Client is required.
type Options struct {
	Client   Reputation
	Patterns *suppression.PatternCache
	Quota    quota.Store
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

// Service is the batch lookup orchestrator.
type Service struct {
	client   Reputation
	patterns *suppression.PatternCache
	quota    quota.Store
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Client == nil {
		return nil, errors.New("lookup: reputation client missing")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	patterns := opts.Patterns
	if patterns == nil {
		patterns = suppression.NewPatternCache(logger)
	}
	return &Service{
		client:   opts.Client,
		patterns: patterns,
		quota:    opts.Quota,
		metrics:  opts.Metrics,
		logger:   logger.With(slog.String("agent", "lookup")),
	}, nil
}

// ValidateConfig reports every problem with candidate options.
func (s *Service) ValidateConfig(opts config.LookupOptions) []config.FieldError {
	return config.ValidateLookupOptions(opts)
}

// Lookup filters ids through the suppression rules and looks up the rest.
// Invalid options yield a *config.ConfigurationError before any request is
// made. In fail-fast mode the first fatal outcome yields a *BatchError.
func (s *Service) Lookup(ctx context.Context, ids []entity.Identifier, opts config.LookupOptions) (BatchResult, error) {
	start := time.Now()

	// The pattern is checked by the cache so an unchanged one is never
	// recompiled here.
	fields := config.ValidateAPIKey(opts)
	filter, err := suppression.NewFilter(opts, s.patterns, s.logger)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if !errors.As(err, &cfgErr) {
			s.metrics.ObserveBatch(metrics.BatchInvalid, time.Since(start))
			return BatchResult{}, err
		}
		fields = append(fields, cfgErr.Fields...)
	}
	if len(fields) > 0 {
		s.metrics.ObserveBatch(metrics.BatchInvalid, time.Since(start))
		return BatchResult{}, &config.ConfigurationError{Fields: fields}
	}
	accepted, suppressed := filter.Partition(ids)
	suppressedTotal := 0
	for reason, n := range suppressed {
		suppressedTotal += n
		for range n {
			s.metrics.ObserveSuppressed(reason)
		}
	}

	tracker := &quotaTracker{}
	outcomes, err := s.runBatch(ctx, accepted, opts.APIKey, opts.FailFast, tracker)
	s.recordQuota(ctx, tracker)
	if err != nil {
		s.metrics.ObserveBatch(metrics.BatchFailed, time.Since(start))
		s.logger.Error("lookup batch aborted",
			slog.Int("accepted", len(accepted)),
			slog.Int("suppressed", suppressedTotal),
			slog.String("error", err.Error()),
		)
		return BatchResult{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.metrics.ObserveBatch(metrics.BatchFailed, time.Since(start))
		return BatchResult{}, fmt.Errorf("lookup: batch interrupted: %w", ctxErr)
	}

	result := assemble(outcomes)
	result.Suppressed = suppressedTotal
	elapsed := time.Since(start)
	s.metrics.ObserveBatch(metrics.BatchOK, elapsed)
	s.logBatch(result, outcomes, elapsed)
	return result, nil
}

func (s *Service) recordQuota(ctx context.Context, tracker *quotaTracker) {
	if s.quota == nil {
		return
	}
	counters, ok := tracker.latest()
	if !ok {
		return
	}
	snap := quota.Snapshot{Counters: counters, ObservedAt: time.Now().UTC()}
	if err := s.quota.Record(context.WithoutCancel(ctx), snap); err != nil {
		s.logger.Warn("quota record failed", slog.String("error", err.Error()))
	}
}

func (s *Service) logBatch(result BatchResult, outcomes []reputation.Outcome, elapsed time.Duration) {
	var hits, misses, limited, failed int
	for _, out := range outcomes {
		switch out.Kind {
		case reputation.KindHit:
			hits++
		case reputation.KindMiss:
			misses++
		case reputation.KindRateLimited:
			limited++
		default:
			failed++
		}
	}
	s.logger.Info("lookup batch complete",
		slog.Int("accepted", result.Accepted),
		slog.Int("suppressed", result.Suppressed),
		slog.Int("hits", hits),
		slog.Int("misses", misses),
		slog.Int("rate_limited", limited),
		slog.Int("failed", failed),
		slog.Int64("latency_ms", elapsed.Milliseconds()),
	)
}
