package suppression

import (
	"log/slog"
	"regexp"

	"github.com/l0p7/emailrep/internal/config"
	"github.com/l0p7/emailrep/internal/entity"
	"github.com/l0p7/emailrep/internal/metrics"
)

// Filter decides which identifiers must not be looked up. A Filter captures
// one pattern snapshot and is meant to serve a single batch.
type Filter struct {
	exact   map[string]struct{}
	pattern *regexp.Regexp
	logger  *slog.Logger
}

// NewFilter resolves the options' domain pattern through cache and returns a
// filter bound to that snapshot.
func NewFilter(opts config.LookupOptions, cache *PatternCache, logger *slog.Logger) (*Filter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = NewPatternCache(logger)
	}
	pattern, err := cache.Ensure(opts.DomainBlocklistRegex)
	if err != nil {
		return nil, err
	}
	return &Filter{
		exact:   opts.BlocklistSet(),
		pattern: pattern,
		logger:  logger.With(slog.String("agent", "suppression")),
	}, nil
}

// Check reports whether id is suppressed and by which rule.
func (f *Filter) Check(id entity.Identifier) (metrics.SuppressionReason, bool) {
	if _, ok := f.exact[id.Normalized()]; ok {
		f.logger.Debug("blocked blocklisted entity lookup", slog.String("entity", id.Value))
		return metrics.SuppressedExact, true
	}
	if f.pattern == nil {
		return "", false
	}
	domain, ok := id.DomainPart()
	if !ok {
		return "", false
	}
	if f.pattern.MatchString(domain) {
		f.logger.Debug("blocked blocklisted domain lookup", slog.String("entity", id.Value), slog.String("domain", domain))
		return metrics.SuppressedDomain, true
	}
	return "", false
}

// ShouldSuppress reports whether id must be skipped.
func (f *Filter) ShouldSuppress(id entity.Identifier) bool {
	_, suppressed := f.Check(id)
	return suppressed
}

// Partition splits ids into the accepted subset, preserving input order, and
// a count of suppressed identifiers per reason.
func (f *Filter) Partition(ids []entity.Identifier) ([]entity.Identifier, map[metrics.SuppressionReason]int) {
	accepted := make([]entity.Identifier, 0, len(ids))
	suppressed := make(map[metrics.SuppressionReason]int)
	for _, id := range ids {
		if reason, ok := f.Check(id); ok {
			suppressed[reason]++
			continue
		}
		accepted = append(accepted, id)
	}
	return accepted, suppressed
}
