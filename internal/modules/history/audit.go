package history

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AuditEntry is one line of the append-only change log.
type AuditEntry struct {
	At        time.Time `json:"at"`
	Action    string    `json:"action"`
	Portfolio string    `json:"portfolio"`
	Ticker    string    `json:"ticker,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// AuditRecorder appends portfolio change records to a JSON-lines file.
// It exists for the user's benefit, not the system's: a write failure
// is logged and swallowed, never surfaced to the mutation path.
type AuditRecorder struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

// NewAuditRecorder creates a recorder writing to path. An empty path
// disables recording.
func NewAuditRecorder(path string, log zerolog.Logger) *AuditRecorder {
	return &AuditRecorder{
		path: path,
		log:  log.With().Str("service", "audit").Logger(),
	}
}

// Record appends one entry to the audit log.
func (r *AuditRecorder) Record(action, portfolio, ticker, details string) {
	if r.path == "" {
		return
	}

	entry := AuditEntry{
		At:        time.Now(),
		Action:    action,
		Portfolio: portfolio,
		Ticker:    ticker,
		Details:   details,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		r.log.Warn().Err(err).Msg("Failed to marshal audit entry")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		r.log.Warn().Err(err).Str("path", r.path).Msg("Failed to open audit log")
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		r.log.Warn().Err(err).Str("path", r.path).Msg("Failed to write audit entry")
	}
}
