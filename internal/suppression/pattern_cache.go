package suppression

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/l0p7/emailrep/internal/config"
)

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

// PatternCache holds the last compiled domain blocklist pattern. Readers load
// an immutable snapshot without locking; writers are serialized and swap the
// snapshot atomically, so a batch never observes a half-updated pattern.
type PatternCache struct {
	logger *slog.Logger

	writeMu  sync.Mutex
	current  atomic.Pointer[compiledPattern]
	compiles atomic.Int64
}

// NewPatternCache returns a cache holding no pattern.
func NewPatternCache(logger *slog.Logger) *PatternCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &PatternCache{logger: logger.With(slog.String("agent", "pattern_cache"))}
	c.current.Store(&compiledPattern{})
	return c
}

// Ensure returns the compiled form of pattern, compiling it case-insensitively
// only when it differs from the cached source. An empty pattern clears the
// cache and yields nil. A pattern that fails to compile leaves the cache
// untouched and returns a *config.ConfigurationError.
func (c *PatternCache) Ensure(pattern string) (*regexp.Regexp, error) {
	if cur := c.current.Load(); cur.source == pattern {
		return cur.re, nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Another writer may have installed the same pattern while we waited.
	if cur := c.current.Load(); cur.source == pattern {
		return cur.re, nil
	}

	if pattern == "" {
		c.logger.Debug("removing domain blocklist regex filtering")
		c.current.Store(&compiledPattern{})
		return nil, nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, &config.ConfigurationError{Fields: []config.FieldError{{
			Field:   "domainBlocklistRegex",
			Message: fmt.Sprintf("invalid regular expression: %v", err),
		}}}
	}
	c.compiles.Add(1)
	c.logger.Debug("modifying domain blocklist regex", slog.String("domain_blocklist_regex", pattern))
	c.current.Store(&compiledPattern{source: pattern, re: re})
	return re, nil
}

// Source reports the pattern string currently cached.
func (c *PatternCache) Source() string {
	return c.current.Load().source
}

// Compilations reports how many times a pattern has been compiled.
func (c *PatternCache) Compilations() int64 {
	return c.compiles.Load()
}
