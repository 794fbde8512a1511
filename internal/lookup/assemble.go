package lookup

import (
	"errors"
	"maps"

	"github.com/l0p7/emailrep/internal/entity"
	"github.com/l0p7/emailrep/internal/reputation"
)

// Entry is the result for one accepted identifier. Data is nil for misses,
// empty hits, rate-limited lookups and failures.
type Entry struct {
	Entity      entity.Identifier    `json:"entity"`
	Data        *Data                `json:"data"`
	RateLimited *reputation.Counters `json:"rateLimited,omitempty"`
	Error       *EntryError          `json:"error,omitempty"`
}

// Data is the populated part of a hit.
type Data struct {
	Summary []string       `json:"summary"`
	Details map[string]any `json:"details"`
}

// EntryError describes a lookup that failed for one identifier while its
// peers completed.
type EntryError struct {
	Kind    reputation.Kind `json:"kind"`
	Message string          `json:"message"`
	Status  int             `json:"status,omitempty"`
}

// BatchResult holds one entry per accepted identifier in input order.
type BatchResult struct {
	Entries    []Entry
	Accepted   int
	Suppressed int

	rateLimit *reputation.Counters
}

// RateLimit reports whether any lookup in the batch was rate limited, with the
// counters of the first such lookup in input order.
func (b BatchResult) RateLimit() (reputation.Counters, bool) {
	if b.rateLimit == nil {
		return reputation.Counters{}, false
	}
	return *b.rateLimit, true
}

func assemble(outcomes []reputation.Outcome) BatchResult {
	result := BatchResult{
		Entries:  make([]Entry, 0, len(outcomes)),
		Accepted: len(outcomes),
	}
	for _, out := range outcomes {
		entry := Entry{Entity: out.Identifier}
		switch out.Kind {
		case reputation.KindHit:
			if out.Details != nil {
				entry.Data = &Data{
					Summary: SummaryTags(out.Details),
					Details: mergeCounters(out.Details, out.Counters),
				}
			}
		case reputation.KindMiss:
		case reputation.KindRateLimited:
			counters := out.Counters
			entry.RateLimited = &counters
			if result.rateLimit == nil {
				result.rateLimit = &counters
			}
		default:
			entry.Error = entryError(out)
		}
		result.Entries = append(result.Entries, entry)
	}
	return result
}

func mergeCounters(details map[string]any, counters reputation.Counters) map[string]any {
	merged := make(map[string]any, len(details)+2)
	maps.Copy(merged, details)
	if counters.DailyRemaining != nil {
		merged["dailyLookupsRemaining"] = *counters.DailyRemaining
	}
	if counters.MonthlyRemaining != nil {
		merged["monthlyLookupsRemaining"] = *counters.MonthlyRemaining
	}
	return merged
}

func entryError(out reputation.Outcome) *EntryError {
	ee := &EntryError{Kind: out.Kind}
	if out.Err != nil {
		ee.Message = out.Err.Error()
	}
	var upstream *reputation.UpstreamError
	if errors.As(out.Err, &upstream) {
		ee.Status = upstream.Status
	}
	return ee
}
