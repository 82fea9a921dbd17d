package threat

import (
	"context"
	"time"
)

// BatchAnalyzer recomputes each known entity's Baseline from its event
// ring on a cadence (hourly in the default deployment). The scan is
// cancellable at well-defined checkpoints, between entities, and
// real-time Ingest never blocks on it.
type BatchAnalyzer struct {
	buffer    Buffer
	baselines *MemoryBaselineStore
	metrics   *Metrics

	entities func() []string // lists known entity ids; overridable for tests
}

// NewBatchAnalyzer constructs a BatchAnalyzer. entities lists the
// entity ids to recompute baselines for (typically sourced from
// IdentityStore or a distinct-actor index).
func NewBatchAnalyzer(buffer Buffer, baselines *MemoryBaselineStore, metrics *Metrics, entities func() []string) *BatchAnalyzer {
	return &BatchAnalyzer{buffer: buffer, baselines: baselines, metrics: metrics, entities: entities}
}

// Run recomputes the baseline for every entity, one at a time, checking
// ctx for cancellation between each. Returns the number of entities
// whose baseline was refreshed before ctx was cancelled or the scan
// completed.
func (a *BatchAnalyzer) Run(ctx context.Context) (int, error) {
	start := time.Now()
	refreshed := 0

	for _, id := range a.entities() {
		select {
		case <-ctx.Done():
			a.recordDuration(start)
			return refreshed, ctx.Err()
		default:
		}

		if err := a.recomputeOne(ctx, id); err != nil {
			continue
		}
		refreshed++
	}

	a.recordDuration(start)
	return refreshed, nil
}

func (a *BatchAnalyzer) recomputeOne(ctx context.Context, id string) error {
	events, err := a.buffer.Recent(ctx, id, GlobalRingCapacity)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	b := newBaseline(id)
	now := time.Now()
	for i := len(events) - 1; i >= 0; i-- {
		evt := events[i]
		ip := ""
		if evt.SourceIP != nil {
			ip = *evt.SourceIP
		}
		b.Observe(evt.Timestamp.Hour(), evt.Timestamp.Weekday(), ip, evt.Kind, now)
	}

	return a.baselines.Upsert(ctx, b)
}

func (a *BatchAnalyzer) recordDuration(start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.BatchDuration.Observe(time.Since(start).Seconds())
}
