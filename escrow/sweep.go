package escrow

import (
	"context"
	"sync"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
	"github.com/trustfabric/vaultcore/keyoracle"
)

// Sweeper periodically expires ACTIVE escrowed credentials past their
// retention and PENDING recoveries past their initiate window, per
// expiry: ciphertext is deleted and the KeyOracle handle is
// destroyed. It also reclaims any one-time plaintext slots left
// unfetched past their TTL.
type Sweeper struct {
	credentials CredentialStore
	recoveries  RecoveryStore
	oracle      keyoracle.KeyOracle
	cache       *PlaintextCache
	sink        eventsink.EventSink

	interval time.Duration
	pageSize int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSweeper constructs a Sweeper scanning every interval, up to
// pageSize records per pass.
func NewSweeper(credentials CredentialStore, recoveries RecoveryStore, oracle keyoracle.KeyOracle, cache *PlaintextCache, sink eventsink.EventSink, interval time.Duration, pageSize int) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if pageSize <= 0 {
		pageSize = DefaultQueryLimit
	}
	return &Sweeper{
		credentials: credentials,
		recoveries:  recoveries,
		oracle:      oracle,
		cache:       cache,
		sink:        sink,
		interval:    interval,
		pageSize:    pageSize,
		done:        make(chan struct{}),
	}
}

// Start launches the background sweep loop. Call Stop to terminate it.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.wg.Wait()
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.SweepOnce(context.Background())
		}
	}
}

// SweepOnce runs a single expiry pass over credentials, recoveries, and
// the plaintext cache, returning the number of credentials expired.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	now := time.Now()

	if s.cache != nil {
		s.cache.sweepExpired(now)
	}

	pending, err := s.recoveries.ListByStatus(ctx, RecoveryStatusPending, s.pageSize)
	if err == nil {
		for _, r := range pending {
			if !r.IsExpired(now) {
				continue
			}
			r.Status = RecoveryStatusExpired
			_ = s.recoveries.Update(ctx, r)
		}
	}

	active, err := s.credentials.ListByStatus(ctx, EscrowStatusActive, s.pageSize)
	if err != nil {
		return 0
	}

	expired := 0
	for _, c := range active {
		if !c.IsExpired(now) {
			continue
		}
		if err := s.oracle.Destroy(ctx, c.KeyHandle); err != nil {
			s.emit(ctx, "escrow.key_destroy_failed", c.EscrowID, map[string]string{"error": err.Error()})
			continue
		}
		c.Status = EscrowStatusExpired
		c.Ciphertext = nil
		if err := s.credentials.Update(ctx, c); err != nil {
			continue
		}
		expired++
		s.emit(ctx, "escrow.credential_expired", c.EscrowID, nil)
	}
	return expired
}

func (s *Sweeper) emit(ctx context.Context, kind, resourceID string, attrs map[string]string) {
	if s.sink == nil {
		return
	}
	evt := eventsink.NewEvent(kind, eventsink.SeverityLow, eventsink.OutcomeFailure)
	evt.ResourceID = &resourceID
	evt.Attributes = attrs
	_, _ = s.sink.Append(ctx, "escrow", nil, evt)
}
