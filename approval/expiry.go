package approval

import (
	"context"
	"sync"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

// ExpirySweeper periodically scans PENDING requests and transitions any
// whose ExpiresAt has passed to StatusExpired, per the PENDING -> EXPIRED
// edge of the request state machine.
type ExpirySweeper struct {
	store Store
	sink  eventsink.EventSink

	interval time.Duration
	pageSize int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewExpirySweeper constructs a sweeper that scans every interval,
// fetching up to pageSize PENDING requests per scan.
func NewExpirySweeper(store Store, sink eventsink.EventSink, interval time.Duration, pageSize int) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if pageSize <= 0 {
		pageSize = DefaultQueryLimit
	}
	return &ExpirySweeper{
		store:    store,
		sink:     sink,
		interval: interval,
		pageSize: pageSize,
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop. Call Stop to terminate it.
func (s *ExpirySweeper) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *ExpirySweeper) Stop() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.wg.Wait()
}

func (s *ExpirySweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepOnce(context.Background())
		}
	}
}

// sweepOnce runs a single scan-and-expire pass, returning the number of
// requests expired. Tests reach it through the exported SweepOnce for
// deterministic control over sweep timing instead of waiting on the ticker.
func (s *ExpirySweeper) sweepOnce(ctx context.Context) int {
	pending, err := s.store.ListByStatus(ctx, StatusPending, s.pageSize)
	if err != nil {
		return 0
	}

	now := time.Now()
	expired := 0
	for _, r := range pending {
		if !r.IsExpired(now) {
			continue
		}
		r.Status = StatusExpired
		if err := s.store.Update(ctx, r); err != nil {
			continue
		}
		expired++
		s.emit(ctx, r)
	}
	return expired
}

// SweepOnce exposes a single synchronous sweep pass, for tests and
// manual/triggered invocations outside the ticker loop.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	return s.sweepOnce(ctx)
}

func (s *ExpirySweeper) emit(ctx context.Context, r *Request) {
	if s.sink == nil {
		return
	}
	evt := eventsink.NewEvent("approval.request_expired", eventsink.SeverityLow, eventsink.OutcomeFailure)
	resourceID := r.RequestID
	evt.ResourceID = &resourceID
	evt.Attributes = map[string]string{"operation_type": r.OperationType}
	_, _ = s.sink.Append(ctx, "approval", nil, evt)
}
