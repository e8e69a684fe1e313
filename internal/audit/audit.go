// Package audit defines the typed event sink the orchestrator emits to
// as it processes each repository, generalizing the teacher's
// AuditService (which combines several compliance sub-checks into one
// report) into a single stream of per-repo lifecycle events.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/repomirror/gitmirror/internal/model"
)

// Event records one repo worker's terminal outcome for a sync run.
type Event struct {
	ID        string           `json:"id"`
	At        time.Time        `json:"at"`
	Target    string           `json:"target"`
	RepoID    model.RepoID     `json:"repo_id"`
	Status    model.SyncStatus `json:"status"`
	OldHash   string           `json:"old_hash,omitempty"`
	NewHash   string           `json:"new_hash,omitempty"`
	Error     string           `json:"error,omitempty"`
	DurationS float64          `json:"duration_seconds"`
}

// NewEvent builds an Event from a worker outcome, generating a fresh
// event ID the way the teacher's sbom_generator.go stamps SBOM serial
// numbers with google/uuid.
func NewEvent(target string, o model.Outcome, at time.Time) Event {
	errText := ""
	if o.Err != nil {
		errText = o.Err.Error()
	}
	return Event{
		ID:        uuid.New().String(),
		At:        at,
		Target:    target,
		RepoID:    o.RepoID,
		Status:    o.Status,
		OldHash:   o.OldHash,
		NewHash:   o.NewHash,
		Error:     errText,
		DurationS: o.DurationSecs,
	}
}

// Sink receives audit events as the orchestrator produces them. The core
// engine never persists events itself — the sink is an opaque
// collaborator supplied by the caller (cmd/mirrorctl writes to a log
// file; tests use an in-memory fake).
type Sink interface {
	Record(Event)
}

// SliceSink is an in-memory Sink useful for tests and for short-lived
// CLI invocations that just want to print a summary at the end.
type SliceSink struct {
	Events []Event
}

// Record appends e to the sink.
func (s *SliceSink) Record(e Event) {
	s.Events = append(s.Events, e)
}

// NopSink discards every event.
type NopSink struct{}

// Record does nothing.
func (NopSink) Record(Event) {}

// FileSink appends each event as a line of JSON to a file, the
// persistence format spec §1 explicitly leaves to the caller (the core
// only defines the event shape, never how it is stored).
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if necessary) a file for append-only
// newline-delimited JSON audit events.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f}, nil
}

// Record writes e as one JSON line. A marshal or write failure is
// not reported back to the caller; the audit trail never fails a sync
// run.
func (s *FileSink) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	data = append(data, '\n')
	s.file.Write(data)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	return s.file.Close()
}
