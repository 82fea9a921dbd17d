package threat

import (
	"context"
	"math"
	"sync"
	"time"
)

// Baseline is the rolling behavioral profile for one (entity_id,
// entity_type): mean/stddev of
// hour-of-day, a day-of-week histogram, a bounded set of recently-seen
// source IPs, and an action histogram.
type Baseline struct {
	EntityID string

	SampleCount int

	// Welford's online algorithm state for hour-of-day (0-23).
	hourMean float64
	hourM2   float64

	DayOfWeekHistogram [7]int
	ActionHistogram    map[string]int

	ipSet   []string // bounded to BoundedIPSetSize, FIFO eviction
	ipIndex map[string]struct{}

	UpdatedAt time.Time
}

func newBaseline(entityID string) *Baseline {
	return &Baseline{
		EntityID:        entityID,
		ActionHistogram: make(map[string]int),
		ipIndex:         make(map[string]struct{}),
	}
}

// HourMean and HourStdDev expose the Welford accumulator's current
// estimate. HourStdDev returns 0 until at least two samples have been
// observed (the sample variance divides by n-1).
func (b *Baseline) HourMean() float64 { return b.hourMean }

func (b *Baseline) HourStdDev() float64 {
	if b.SampleCount < 2 {
		return 0
	}
	variance := b.hourM2 / float64(b.SampleCount-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// IsUsable reports whether b has enough samples for the off-baseline
// detector, which needs at least 50 samples.
func (b *Baseline) IsUsable() bool {
	return b.SampleCount >= MinBaselineSamples
}

// SeenIP reports whether ip is among the last BoundedIPSetSize distinct
// source IPs observed for this entity.
func (b *Baseline) SeenIP(ip string) bool {
	_, ok := b.ipIndex[ip]
	return ok
}

// Observe folds one more sample into the baseline's running statistics.
func (b *Baseline) Observe(hour int, dayOfWeek time.Weekday, ip, action string, now time.Time) {
	b.SampleCount++
	delta := float64(hour) - b.hourMean
	b.hourMean += delta / float64(b.SampleCount)
	delta2 := float64(hour) - b.hourMean
	b.hourM2 += delta * delta2

	b.DayOfWeekHistogram[int(dayOfWeek)]++

	if action != "" {
		b.ActionHistogram[action]++
	}

	if ip != "" {
		if _, ok := b.ipIndex[ip]; !ok {
			b.ipSet = append(b.ipSet, ip)
			b.ipIndex[ip] = struct{}{}
			if len(b.ipSet) > BoundedIPSetSize {
				evicted := b.ipSet[0]
				b.ipSet = b.ipSet[1:]
				delete(b.ipIndex, evicted)
			}
		}
	}

	b.UpdatedAt = now
}

// BaselineStore holds the current Baseline per entity and is the
// target of the periodic recompute in batch.go.
type BaselineStore interface {
	Get(ctx context.Context, entityID string) (*Baseline, bool, error)
	Upsert(ctx context.Context, b *Baseline) error
}

// MemoryBaselineStore is an in-process BaselineStore.
type MemoryBaselineStore struct {
	mu        sync.RWMutex
	baselines map[string]*Baseline
}

func NewMemoryBaselineStore() *MemoryBaselineStore {
	return &MemoryBaselineStore{baselines: make(map[string]*Baseline)}
}

func (s *MemoryBaselineStore) Get(ctx context.Context, entityID string) (*Baseline, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[entityID]
	return b, ok, nil
}

func (s *MemoryBaselineStore) Upsert(ctx context.Context, b *Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[b.EntityID] = b
	return nil
}

// GetOrCreate returns entityID's Baseline, creating an empty one if
// none exists yet.
func (s *MemoryBaselineStore) GetOrCreate(entityID string) *Baseline {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.baselines[entityID]
	if !ok {
		b = newBaseline(entityID)
		s.baselines[entityID] = b
	}
	return b
}
