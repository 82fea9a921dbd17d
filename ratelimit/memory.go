package ratelimit

import (
	"context"
	"sync"
	"time"
)

// limitKey identifies one identity's budget for one operation kind.
// Identities never share a key, so no submission by one agent can
// consume another's budget.
type limitKey struct {
	identityID string
	kind       string
}

// window tracks the submissions charged against one limitKey inside its
// current tier window, as a sliding log of charge times.
type window struct {
	charges []time.Time
}

// MemoryLimiter is the in-process SubmissionLimiter, for tests and
// single-instance deployments. Multi-instance deployments share budgets
// through DynamoDBLimiter instead.
type MemoryLimiter struct {
	config Config

	mu      sync.Mutex
	windows map[limitKey]*window

	sweepInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup

	clock func() time.Time
}

// NewMemoryLimiter validates cfg and starts a MemoryLimiter. A
// background goroutine reclaims idle windows; call Close to stop it.
func NewMemoryLimiter(cfg Config) (*MemoryLimiter, error) {
	return NewMemoryLimiterWithSweep(cfg, 10*time.Minute)
}

// NewMemoryLimiterWithSweep is NewMemoryLimiter with a caller-chosen
// sweep interval, for tests that need fast reclamation.
func NewMemoryLimiterWithSweep(cfg Config, sweepInterval time.Duration) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &MemoryLimiter{
		config:        cfg,
		windows:       make(map[limitKey]*window),
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
		clock:         time.Now,
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return m, nil
}

// Allow charges one submission against (identityID, operationKind)'s
// tier and reports whether it fits the budget. Denied submissions are
// not charged.
func (m *MemoryLimiter) Allow(_ context.Context, identityID, operationKind string) (Decision, error) {
	tier := m.config.TierFor(operationKind)
	now := m.clock()
	cutoff := now.Add(-tier.Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	key := limitKey{identityID: identityID, kind: operationKind}
	w, ok := m.windows[key]
	if !ok {
		w = &window{}
		m.windows[key] = w
	}
	w.charges = dropBefore(w.charges, cutoff)

	if len(w.charges) >= tier.Submissions {
		oldest := w.charges[0]
		retryAfter := oldest.Add(tier.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{
			RetryAfter: retryAfter,
			ResetAt:    w.charges[len(w.charges)-1].Add(tier.Window),
		}, nil
	}

	w.charges = append(w.charges, now)
	return Decision{
		Allowed:   true,
		Remaining: tier.Submissions - len(w.charges),
		ResetAt:   now.Add(tier.Window),
	}, nil
}

// Close stops the background sweep goroutine. Safe to call multiple
// times.
func (m *MemoryLimiter) Close() error {
	select {
	case <-m.done:
		return nil
	default:
		close(m.done)
	}
	m.wg.Wait()
	return nil
}

// TrackedIdentities reports how many (identity, kind) budgets currently
// hold live charges, for operational monitoring.
func (m *MemoryLimiter) TrackedIdentities() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *MemoryLimiter) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep drops windows whose every charge has aged out of its tier, so
// an identity that went quiet stops costing memory.
func (m *MemoryLimiter) sweep() {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, w := range m.windows {
		tier := m.config.TierFor(key.kind)
		w.charges = dropBefore(w.charges, now.Add(-tier.Window))
		if len(w.charges) == 0 {
			delete(m.windows, key)
		}
	}
}

// dropBefore discards charges at or before cutoff, in place.
func dropBefore(charges []time.Time, cutoff time.Time) []time.Time {
	live := charges[:0]
	for _, c := range charges {
		if c.After(cutoff) {
			live = append(live, c)
		}
	}
	return live
}

var _ SubmissionLimiter = (*MemoryLimiter)(nil)
