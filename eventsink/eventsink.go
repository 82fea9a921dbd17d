// Package eventsink defines the canonical security event and the
// abstract EventSink capability that the vault's components append to and
// query from. EventSink is best-effort-durable: it does not require
// strong consistency, but it requires a monotonic event_id per producer.
package eventsink

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of the operation an event describes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
	OutcomePending Outcome = "pending"
)

// Severity is the significance of an event for audit/alerting purposes.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for comparisons like "at least high".
var rank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return rank[s] >= rank[other]
}

// Event is the canonical security event emitted to EventSink and
// forwarded to external SIEMs.
type Event struct {
	EventID    string            `json:"event_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Kind       string            `json:"kind"`
	ActorID    *string           `json:"actor_id,omitempty"`
	ResourceID *string           `json:"resource_id,omitempty"`
	SourceIP   *string           `json:"source_ip,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	Outcome    Outcome           `json:"outcome"`
	Severity   Severity          `json:"severity"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewEvent constructs an Event with a fresh UUIDv7 event_id (time-ordered,
// lexicographically sortable) and the current UTC timestamp.
func NewEvent(kind string, severity Severity, outcome Outcome) *Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Event{
		EventID:   id.String(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Outcome:   outcome,
		Severity:  severity,
	}
}

// StoredEvent pairs a persisted event_id with its content, as returned by
// Query.
type StoredEvent struct {
	EventID string
	Content *Event
}

// EventSink is the abstract append/query capability required of the
// host. The core treats it as an opaque, tagged, append-only sink; it
// never requires strong consistency, only monotonic event_id per
// producer.
type EventSink interface {
	// Append stores content under category with the given tags and
	// returns its assigned event_id.
	Append(ctx context.Context, category string, tags []string, content *Event) (eventID string, err error)

	// Query returns events matching the given filters, newest first,
	// capped at limit.
	Query(ctx context.Context, category string, tags []string, since time.Time, limit int) ([]StoredEvent, error)
}

// RetentionYears returns the minimum retention period, in years, for the
// audit log of a given operation kind, per compliance class.
func RetentionYears(operationKind string) int {
	switch operationKind {
	case "credential_delete", "vault_configure":
		return 7
	case "emergency_access", "emergency_revoke":
		return 5
	case "credential_access":
		return 3
	default:
		return 3
	}
}
