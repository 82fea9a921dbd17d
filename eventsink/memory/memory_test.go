package memory

import (
	"context"
	"testing"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

func TestSink_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := New()

	evt := eventsink.NewEvent("identity.registered", eventsink.SeverityInfo, eventsink.OutcomeSuccess)
	id, err := s.Append(ctx, "identity", []string{"lifecycle"}, evt)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if id != evt.EventID {
		t.Errorf("Append() returned %q, want %q", id, evt.EventID)
	}

	got, err := s.Query(ctx, "identity", nil, time.Time{}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() returned %d events, want 1", len(got))
	}
	if got[0].EventID != evt.EventID {
		t.Errorf("Query()[0].EventID = %q, want %q", got[0].EventID, evt.EventID)
	}
}

func TestSink_QueryFiltersByCategory(t *testing.T) {
	ctx := context.Background()
	s := New()

	s.Append(ctx, "identity", nil, eventsink.NewEvent("identity.registered", eventsink.SeverityInfo, eventsink.OutcomeSuccess))
	s.Append(ctx, "approval", nil, eventsink.NewEvent("request.created", eventsink.SeverityInfo, eventsink.OutcomeSuccess))

	got, err := s.Query(ctx, "approval", nil, time.Time{}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].Content.Kind != "request.created" {
		t.Errorf("Query() = %+v, want single request.created event", got)
	}
}

func TestSink_QueryFiltersByTags(t *testing.T) {
	ctx := context.Background()
	s := New()

	s.Append(ctx, "identity", []string{"a", "b"}, eventsink.NewEvent("e1", eventsink.SeverityInfo, eventsink.OutcomeSuccess))
	s.Append(ctx, "identity", []string{"a"}, eventsink.NewEvent("e2", eventsink.SeverityInfo, eventsink.OutcomeSuccess))

	got, err := s.Query(ctx, "identity", []string{"b"}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 || got[0].Content.Kind != "e1" {
		t.Errorf("Query() = %+v, want single e1 event", got)
	}
}

func TestSink_QueryRespectsLimit(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 5; i++ {
		s.Append(ctx, "identity", nil, eventsink.NewEvent("e", eventsink.SeverityInfo, eventsink.OutcomeSuccess))
	}

	got, err := s.Query(ctx, "identity", nil, time.Time{}, 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Query() returned %d events, want 2", len(got))
	}
}
