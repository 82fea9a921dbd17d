package threat

import (
	"context"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

// Buffer is the bounded per-entity ring of recent events. It
// holds recent events for windowed queries ("count(kind) in last N
// minutes") without requiring callers to replay the entire history.
type Buffer interface {
	// Append adds evt to entityID's ring, evicting the oldest event
	// (FIFO) once the per-entity or global cap is reached. Returns
	// true if an eviction occurred (used to drive the BUFFER_OVERRUN
	// counter).
	Append(ctx context.Context, entityID string, evt *eventsink.Event) (evicted bool, err error)

	// Recent returns up to limit of entityID's most recent events,
	// newest first.
	Recent(ctx context.Context, entityID string, limit int) ([]*eventsink.Event, error)

	// CountSince counts entityID's events of kind that occurred at or
	// after since.
	CountSince(ctx context.Context, entityID, kind string, since time.Time) (int, error)
}

// entityRing holds one entity's bounded event history; windowed counts
// filter it by timestamp, the idiom used for rate-limit buckets.
type entityRing struct {
	events []*eventsink.Event // newest last; capped, FIFO eviction
}

func (r *entityRing) append(evt *eventsink.Event, cap int) (evicted bool) {
	r.events = append(r.events, evt)
	if len(r.events) > cap {
		r.events = r.events[len(r.events)-cap:]
		evicted = true
	}
	return evicted
}

func (r *entityRing) recent(limit int) []*eventsink.Event {
	n := len(r.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*eventsink.Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.events[n-1-i]
	}
	return out
}

func (r *entityRing) countSince(kind string, since time.Time) int {
	count := 0
	for _, evt := range r.events {
		if evt.Kind == kind && !evt.Timestamp.Before(since) {
			count++
		}
	}
	return count
}
