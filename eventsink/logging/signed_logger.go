package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/trustfabric/vaultcore/eventsink"
)

// SignedLogger wraps raw JSON Lines output so every entry carries an
// HMAC-SHA256 signature, giving tamper-evidence to the local audit trail.
type SignedLogger struct {
	writer io.Writer
	config *SignatureConfig
}

// NewSignedLogger creates a SignedLogger. config must have a valid secret
// key (at least MinKeyLength bytes).
func NewSignedLogger(w io.Writer, config *SignatureConfig) *SignedLogger {
	return &SignedLogger{writer: w, config: config}
}

func (l *SignedLogger) LogEvent(category string, tags []string, event *eventsink.Event) {
	l.writeSignedEntry(entry{Category: category, Tags: tags, Event: event})
}

// writeSignedEntry signs e and writes it as JSON. On signing failure it
// falls back to an unsigned entry rather than dropping the audit record
// (fail-open for availability, matching the rest of the audit pipeline).
func (l *SignedLogger) writeSignedEntry(e entry) {
	signed, err := NewSignedEntry(e, l.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: signing error: %v\n", err)
		l.writeFallback(e)
		return
	}

	data, err := json.Marshal(signed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: marshal error: %v\n", err)
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

func (l *SignedLogger) writeFallback(e entry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}
