package reputation

import (
	"net/http"
	"strconv"

	"github.com/l0p7/emailrep/internal/entity"
)

// Kind classifies the result of one lookup.
type Kind string

const (
	KindHit            Kind = "hit"
	KindMiss           Kind = "miss"
	KindRateLimited    Kind = "rate_limited"
	KindTransportError Kind = "transport_error"
	KindUpstreamError  Kind = "upstream_error"
)

const (
	headerDailyRemaining   = "X-Rate-Limit-Daily-Remaining"
	headerMonthlyRemaining = "X-Rate-Limit-Monthly-Remaining"
)

// Counters carries the remaining quota reported by the upstream. A nil field
// means the header was absent.
type Counters struct {
	DailyRemaining   *string `json:"dailyRemaining,omitempty"`
	MonthlyRemaining *string `json:"monthlyRemaining,omitempty"`
}

// Present reports whether at least one counter was reported.
func (c Counters) Present() bool {
	return c.DailyRemaining != nil || c.MonthlyRemaining != nil
}

// Daily returns the daily counter as an integer when it is present and numeric.
func (c Counters) Daily() (int64, bool) { return parseCounter(c.DailyRemaining) }

// Monthly returns the monthly counter as an integer when it is present and numeric.
func (c Counters) Monthly() (int64, bool) { return parseCounter(c.MonthlyRemaining) }

func parseCounter(v *string) (int64, bool) {
	if v == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(*v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func countersFromHeader(h http.Header) Counters {
	var c Counters
	if v := h.Get(headerDailyRemaining); v != "" {
		c.DailyRemaining = &v
	}
	if v := h.Get(headerMonthlyRemaining); v != "" {
		c.MonthlyRemaining = &v
	}
	return c
}

// Outcome is produced exactly once per looked-up identifier.
type Outcome struct {
	Identifier entity.Identifier
	Kind       Kind
	// Details is the decoded response object for hits. It is nil for a hit
	// whose body was empty.
	Details  map[string]any
	Counters Counters
	// Err is set for rate-limited, transport and upstream outcomes.
	Err error
}

// Fatal reports whether the outcome is a transport or upstream failure.
func (o Outcome) Fatal() bool {
	return o.Kind == KindTransportError || o.Kind == KindUpstreamError
}
