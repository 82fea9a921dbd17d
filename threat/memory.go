package threat

import (
	"context"
	"sync"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

// perEntityCapacity bounds each entity's ring, separately from the
// GlobalRingCapacity applied across all entities combined.
const perEntityCapacity = 2000

// MemoryBuffer is an in-process, map-backed Buffer, shaped like
// ratelimit.MemoryLimiter: single mutex, per-key slice, periodic
// sweep of anything past EntityRetention.
type MemoryBuffer struct {
	mu      sync.Mutex
	rings   map[string]*entityRing
	total   int
	cleanupInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewMemoryBuffer constructs a MemoryBuffer and starts its background
// retention sweep. Call Stop to terminate it.
func NewMemoryBuffer() *MemoryBuffer {
	b := &MemoryBuffer{
		rings:           make(map[string]*entityRing),
		cleanupInterval: 10 * time.Minute,
		done:            make(chan struct{}),
	}
	b.wg.Add(1)
	go b.cleanupLoop()
	return b
}

func (b *MemoryBuffer) Append(ctx context.Context, entityID string, evt *eventsink.Event) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[entityID]
	if !ok {
		r = &entityRing{}
		b.rings[entityID] = r
	}
	evicted := r.append(evt, perEntityCapacity)

	b.total++
	if b.total > GlobalRingCapacity {
		b.evictOldestLocked()
		evicted = true
	}
	return evicted, nil
}

// evictOldestLocked drops the globally oldest event across all rings.
// Called with mu held.
func (b *MemoryBuffer) evictOldestLocked() {
	var oldestEntity string
	var oldestTime time.Time
	first := true
	for id, r := range b.rings {
		if len(r.events) == 0 {
			continue
		}
		t := r.events[0].Timestamp
		if first || t.Before(oldestTime) {
			oldestEntity, oldestTime, first = id, t, false
		}
	}
	if oldestEntity == "" {
		return
	}
	r := b.rings[oldestEntity]
	r.events = r.events[1:]
	b.total--
}

func (b *MemoryBuffer) Recent(ctx context.Context, entityID string, limit int) ([]*eventsink.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[entityID]
	if !ok {
		return nil, nil
	}
	return r.recent(limit), nil
}

func (b *MemoryBuffer) CountSince(ctx context.Context, entityID, kind string, since time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[entityID]
	if !ok {
		return 0, nil
	}
	return r.countSince(kind, since), nil
}

// Entities returns every entity id currently holding at least one
// buffered event, suitable as a BatchAnalyzer entity source for
// single-process deployments.
func (b *MemoryBuffer) Entities() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.rings))
	for id := range b.rings {
		ids = append(ids, id)
	}
	return ids
}

// Stop terminates the background retention sweep. Safe to call once.
func (b *MemoryBuffer) Stop() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}
	b.wg.Wait()
}

func (b *MemoryBuffer) cleanupLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.cleanup()
		}
	}
}

func (b *MemoryBuffer) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-EntityRetention)
	for id, r := range b.rings {
		kept := r.events[:0]
		for _, evt := range r.events {
			if evt.Timestamp.After(cutoff) {
				kept = append(kept, evt)
			} else {
				b.total--
			}
		}
		r.events = kept
		if len(r.events) == 0 {
			delete(b.rings, id)
		}
	}
}
