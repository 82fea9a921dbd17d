// Package memory implements an in-process eventsink.EventSink for tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

type record struct {
	category string
	tags     []string
	event    *eventsink.Event
}

// Sink is a thread-safe in-memory EventSink.
type Sink struct {
	mu      sync.Mutex
	records []record
}

// New creates an empty in-memory Sink.
func New() *Sink {
	return &Sink{}
}

func (s *Sink) Append(_ context.Context, category string, tags []string, content *eventsink.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record{category: category, tags: append([]string(nil), tags...), event: content})
	return content.EventID, nil
}

func (s *Sink) Query(_ context.Context, category string, tags []string, since time.Time, limit int) ([]eventsink.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []record
	for _, r := range s.records {
		if category != "" && r.category != category {
			continue
		}
		if !r.event.Timestamp.After(since) && !since.IsZero() {
			continue
		}
		if len(tags) > 0 && !hasAllTags(r.tags, tags) {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].event.Timestamp.After(matched[j].event.Timestamp)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]eventsink.StoredEvent, 0, len(matched))
	for _, r := range matched {
		out = append(out, eventsink.StoredEvent{EventID: r.event.EventID, Content: r.event})
	}
	return out, nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[strings.ToLower(t)] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[strings.ToLower(w)]; !ok {
			return false
		}
	}
	return true
}
