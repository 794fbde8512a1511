package quota

import (
	"context"
	"time"

	"github.com/l0p7/emailrep/internal/reputation"
)

// Snapshot is the most recent remaining-quota report seen from the upstream.
type Snapshot struct {
	reputation.Counters
	ObservedAt time.Time `json:"observedAt"`
}

// Store keeps the latest quota snapshot. Only rate-limit counters are held
// here; lookup results are never stored.
type Store interface {
	Record(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, bool, error)
	Close(ctx context.Context) error
}

func cloneSnapshot(in Snapshot) Snapshot {
	out := Snapshot{ObservedAt: in.ObservedAt}
	if in.DailyRemaining != nil {
		v := *in.DailyRemaining
		out.DailyRemaining = &v
	}
	if in.MonthlyRemaining != nil {
		v := *in.MonthlyRemaining
		out.MonthlyRemaining = &v
	}
	return out
}
