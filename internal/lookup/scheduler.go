package lookup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l0p7/emailrep/internal/entity"
	"github.com/l0p7/emailrep/internal/reputation"
	"golang.org/x/sync/errgroup"
)

// ConcurrencyLimit caps the number of lookups in flight for one batch.
const ConcurrencyLimit = 10

// quotaTracker keeps the counters of the most recently completed lookup that
// reported any.
type quotaTracker struct {
	mu       sync.Mutex
	counters reputation.Counters
	seen     bool
}

func (q *quotaTracker) observe(c reputation.Counters) {
	if !c.Present() {
		return
	}
	q.mu.Lock()
	q.counters = c
	q.seen = true
	q.mu.Unlock()
}

func (q *quotaTracker) latest() (reputation.Counters, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counters, q.seen
}

// runBatch looks up every identifier with at most ConcurrencyLimit requests
// in flight. outcomes[i] always belongs to ids[i].
//
// With failFast set the first transport, upstream or rate-limit outcome is
// latched: no further lookups start, those already running drain, and the
// latched outcome is returned as a *BatchError.
func (s *Service) runBatch(ctx context.Context, ids []entity.Identifier, apiKey string, failFast bool, tracker *quotaTracker) ([]reputation.Outcome, error) {
	outcomes := make([]reputation.Outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(ConcurrencyLimit)
	var latched atomic.Bool

	for i, id := range ids {
		if latched.Load() {
			break
		}
		g.Go(func() error {
			// A slot may free up only after the latch was set.
			if latched.Load() {
				return nil
			}
			out := s.lookupOne(ctx, id, apiKey)
			outcomes[i] = out
			tracker.observe(out.Counters)
			if failFast && fatalInFailFast(out) {
				latched.Store(true)
				return &BatchError{Identifier: id, Err: out.Err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func fatalInFailFast(out reputation.Outcome) bool {
	return out.Fatal() || out.Kind == reputation.KindRateLimited
}

func (s *Service) lookupOne(ctx context.Context, id entity.Identifier, apiKey string) reputation.Outcome {
	s.metrics.LookupStarted()
	start := time.Now()
	out := s.client.Lookup(ctx, id, apiKey)
	elapsed := time.Since(start)
	s.metrics.LookupFinished()
	s.metrics.ObserveLookup(string(out.Kind), elapsed)

	if daily, ok := out.Counters.Daily(); ok {
		s.metrics.ObserveQuota("daily", float64(daily))
	}
	if monthly, ok := out.Counters.Monthly(); ok {
		s.metrics.ObserveQuota("monthly", float64(monthly))
	}

	if out.Err != nil {
		s.logger.Warn("lookup failed",
			slog.String("entity", id.Value),
			slog.String("outcome", string(out.Kind)),
			slog.String("error", out.Err.Error()),
		)
	}
	return out
}
