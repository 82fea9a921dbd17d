package threat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

func newActorEvent(kind string, actorID string, at time.Time, seq int) *eventsink.Event {
	return &eventsink.Event{
		EventID:   fmt.Sprintf("evt-%s-%d", actorID, seq),
		Timestamp: at,
		Kind:      kind,
		ActorID:   &actorID,
		Outcome:   eventsink.OutcomeSuccess,
		Severity:  eventsink.SeverityInfo,
	}
}

func hasInsight(insights []*Insight, kind InsightKind) bool {
	for _, ins := range insights {
		if ins.Kind == kind {
			return true
		}
	}
	return false
}

// newTestEngine builds an Engine over fresh in-memory stores. Callers
// must defer both Close (dedupe cleanup) and Stop (buffer retention
// sweep) to terminate their background goroutines.
func newTestEngine() (*Engine, *MemoryBuffer) {
	buf := NewMemoryBuffer()
	return NewEngine(buf, NewMemoryBaselineStore(), nil, nil, nil), buf
}

func TestEngine_Ingest_OffHoursPrivilegedAction(t *testing.T) {
	e, buf := newTestEngine()
	defer e.Close()
	defer buf.Stop()
	ctx := context.Background()

	at := time.Date(2026, 7, 31, 3, 15, 0, 0, time.UTC)
	e.clock = func() time.Time { return at }

	insights, err := e.Ingest(ctx, newActorEvent("user_manage", "actor-1", at, 1))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !hasInsight(insights, InsightOffHoursPrivileged) {
		t.Fatalf("Ingest() = %+v, want an off_hours_privileged_action insight", insights)
	}
}

// TestEngine_Ingest_DedupesRepeatWithinWindow: a subsequent identical
// event within the same hour must not produce a duplicate insight,
// deduped by (actor, pattern, 1h window).
func TestEngine_Ingest_DedupesRepeatWithinWindow(t *testing.T) {
	e, buf := newTestEngine()
	defer e.Close()
	defer buf.Stop()
	ctx := context.Background()

	at := time.Date(2026, 7, 31, 3, 15, 0, 0, time.UTC)
	e.clock = func() time.Time { return at }

	first, err := e.Ingest(ctx, newActorEvent("user_manage", "actor-1", at, 1))
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if !hasInsight(first, InsightOffHoursPrivileged) {
		t.Fatalf("first Ingest() = %+v, want an off_hours_privileged_action insight", first)
	}

	// An identical event 20 minutes later, still the same hour window.
	at = at.Add(20 * time.Minute)
	second, err := e.Ingest(ctx, newActorEvent("user_manage", "actor-1", at, 2))
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if hasInsight(second, InsightOffHoursPrivileged) {
		t.Errorf("second Ingest() within the dedupe window re-emitted a duplicate insight: %+v", second)
	}

	// Once the 1h window has elapsed, the same pattern may fire again.
	at = at.Add(2 * time.Hour)
	third, err := e.Ingest(ctx, newActorEvent("user_manage", "actor-1", at, 3))
	if err != nil {
		t.Fatalf("third Ingest() error = %v", err)
	}
	if !hasInsight(third, InsightOffHoursPrivileged) {
		t.Errorf("third Ingest() after the dedupe window elapsed = %+v, want the insight to re-emit", third)
	}
}

// TestEngine_Ingest_DedupeIsPerActor proves the dedupe key includes the
// actor: the same pattern firing for a different entity in the same
// window must not be suppressed by another entity's prior firing.
func TestEngine_Ingest_DedupeIsPerActor(t *testing.T) {
	e, buf := newTestEngine()
	defer e.Close()
	defer buf.Stop()
	ctx := context.Background()

	at := time.Date(2026, 7, 31, 3, 15, 0, 0, time.UTC)
	e.clock = func() time.Time { return at }

	if _, err := e.Ingest(ctx, newActorEvent("user_manage", "actor-1", at, 1)); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	insights, err := e.Ingest(ctx, newActorEvent("user_manage", "actor-2", at, 2))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !hasInsight(insights, InsightOffHoursPrivileged) {
		t.Errorf("Ingest() for a different actor = %+v, want its own insight, not suppressed by actor-1's", insights)
	}
}

func TestEngine_Ingest_NoInsightsDuringBusinessHours(t *testing.T) {
	e, buf := newTestEngine()
	defer e.Close()
	defer buf.Stop()
	ctx := context.Background()

	at := time.Date(2026, 7, 27, 14, 0, 0, 0, time.UTC) // Monday, 2pm
	e.clock = func() time.Time { return at }

	insights, err := e.Ingest(ctx, newActorEvent("credential_access", "actor-1", at, 1))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(insights) != 0 {
		t.Errorf("Ingest() during business hours with no prior history = %+v, want no insights", insights)
	}
}

func TestEngine_Ingest_RapidFireAccessCrossesQuorum(t *testing.T) {
	e, buf := newTestEngine()
	defer e.Close()
	defer buf.Stop()
	ctx := context.Background()

	base := time.Date(2026, 7, 27, 14, 0, 0, 0, time.UTC)
	e.clock = func() time.Time { return base }

	var last []*Insight
	for i := 0; i < 11; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		e.clock = func() time.Time { return at }
		insights, err := e.Ingest(ctx, newActorEvent("credential_access", "actor-1", at, i))
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if i == 9 && hasInsight(insights, InsightRapidFireAccess) {
			t.Errorf("Ingest() fired rapid_fire_access at the 10th event; the threshold is the 11th")
		}
		last = insights
	}
	if !hasInsight(last, InsightRapidFireAccess) {
		t.Errorf("Ingest() after 11 credential_access events in 5 minutes = %+v, want rapid_fire_access", last)
	}
}

// TestEngine_Ingest_OffHoursAdminInsightShape covers the off-hours
// administrative event end to end: a 03:15 "admin" event with no prior
// baseline history yields the titled insight at confidence 0.7 with a
// verify-authorization recommendation and risk at or above the
// reporting threshold.
func TestEngine_Ingest_OffHoursAdminInsightShape(t *testing.T) {
	e, buf := newTestEngine()
	defer e.Close()
	defer buf.Stop()
	ctx := context.Background()

	at := time.Date(2026, 7, 31, 3, 15, 0, 0, time.UTC)
	e.clock = func() time.Time { return at }

	insights, err := e.Ingest(ctx, newActorEvent("admin", "actor-1", at, 1))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	var found *Insight
	for _, ins := range insights {
		if ins.Kind == InsightOffHoursPrivileged {
			found = ins
		}
	}
	if found == nil {
		t.Fatalf("Ingest() = %+v, want an off_hours_privileged_action insight", insights)
	}
	if found.Title != "Off-Hours Administrative Activity" {
		t.Errorf("insight title = %q, want %q", found.Title, "Off-Hours Administrative Activity")
	}
	if found.Confidence != 0.7 {
		t.Errorf("insight confidence = %v, want 0.7", found.Confidence)
	}
	if found.RiskScore < HighRiskThreshold {
		t.Errorf("insight risk = %v, want >= %v", found.RiskScore, HighRiskThreshold)
	}
	if len(found.Recommendations) == 0 {
		t.Error("insight carries no recommendations, want a verify-authorization recommendation")
	}
	if found.ExpiresAt.IsZero() || !found.ExpiresAt.After(found.DetectedAt) {
		t.Errorf("insight ExpiresAt = %v, want after DetectedAt %v", found.ExpiresAt, found.DetectedAt)
	}
}
