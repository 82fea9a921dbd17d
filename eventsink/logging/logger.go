// Package logging provides structured, optionally HMAC-signed JSON-Lines
// logging for canonical security events, used as a local/offline EventSink
// companion (defense-in-depth alongside the durable DynamoDB sink).
package logging

import (
	"encoding/json"
	"io"

	"github.com/trustfabric/vaultcore/eventsink"
)

// Logger defines the interface for writing canonical security events to a
// local append-only stream.
type Logger interface {
	LogEvent(category string, tags []string, event *eventsink.Event)
}

// entry is the on-disk JSON Lines record shape.
type entry struct {
	Category string            `json:"category"`
	Tags     []string          `json:"tags,omitempty"`
	Event    *eventsink.Event  `json:"event"`
}

// JSONLogger implements Logger with unsigned JSON Lines output.
type JSONLogger struct {
	writer io.Writer
}

// NewJSONLogger creates a JSONLogger writing to w.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{writer: w}
}

func (l *JSONLogger) LogEvent(category string, tags []string, event *eventsink.Event) {
	data, err := json.Marshal(entry{Category: category, Tags: tags, Event: event})
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// NopLogger implements Logger but discards all entries.
type NopLogger struct{}

// NewNopLogger creates a NopLogger.
func NewNopLogger() *NopLogger { return &NopLogger{} }

func (l *NopLogger) LogEvent(category string, tags []string, event *eventsink.Event) {}
