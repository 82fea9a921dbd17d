package eventsink

import (
	"context"
	"time"
)

// EventLogger receives a copy of every appended event for a local
// append-only stream. logging.Logger satisfies it.
type EventLogger interface {
	LogEvent(category string, tags []string, event *Event)
}

// EventBroadcaster offers appended events to external subscribers.
// sns.Broadcaster satisfies it; implementations decide (by severity)
// whether an event is actually published.
type EventBroadcaster interface {
	Broadcast(ctx context.Context, evt *Event) (published bool, err error)
}

// FanoutSink decorates an EventSink so that every durably appended event
// is also written to a local logger and offered to a broadcaster. The
// durable append is authoritative: if it fails, neither side channel
// sees the event, and side-channel failures never fail the append.
type FanoutSink struct {
	inner       EventSink
	logger      EventLogger
	broadcaster EventBroadcaster
}

// NewFanoutSink wraps inner. logger and broadcaster may each be nil to
// disable that side channel.
func NewFanoutSink(inner EventSink, logger EventLogger, broadcaster EventBroadcaster) *FanoutSink {
	return &FanoutSink{inner: inner, logger: logger, broadcaster: broadcaster}
}

// Append stores content in the underlying sink, then fans it out.
func (s *FanoutSink) Append(ctx context.Context, category string, tags []string, content *Event) (string, error) {
	eventID, err := s.inner.Append(ctx, category, tags, content)
	if err != nil {
		return "", err
	}
	if s.logger != nil {
		s.logger.LogEvent(category, tags, content)
	}
	if s.broadcaster != nil {
		// Best-effort: the durable append already succeeded, and the
		// broadcaster is not required to be available.
		_, _ = s.broadcaster.Broadcast(ctx, content)
	}
	return eventID, nil
}

// Query delegates to the underlying sink.
func (s *FanoutSink) Query(ctx context.Context, category string, tags []string, since time.Time, limit int) ([]StoredEvent, error) {
	return s.inner.Query(ctx, category, tags, since, limit)
}
