// Package archive persists the raw event stream of a run for later
// replay and inspection.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/imagine/types"
)

// Record is one archived stream event with run provenance.
type Record struct {
	// RunID identifies the run the event belongs to.
	RunID string `json:"run_id"`
	// Seq is the 1-based position of the event within the run's stream.
	Seq int64 `json:"seq"`
	// At is the wall-clock time the event was decoded.
	At time.Time `json:"at"`
	// Event is the decoded stream event, payload included.
	Event *types.StreamEvent `json:"event"`
}

// Sink abstracts archival of stream events.
// Implementations may buffer, write to storage, or stub for testing.
//
// Archival is best effort: the run engine logs sink failures and keeps
// reconciling; a broken archive never fails a run.
type Sink interface {
	// Record archives one stream event.
	Record(ctx context.Context, rec *Record) error

	// Flush persists any buffered records.
	// Called on run completion and on termination paths.
	Flush(ctx context.Context) error

	// Close releases sink resources.
	Close() error

	// Stats returns an atomic snapshot of sink counters.
	Stats() Stats
}

// Stats represents sink observability counters.
type Stats struct {
	// TotalRecords is the total number of records received.
	TotalRecords int64
	// RecordsPersisted is the number of records written out.
	RecordsPersisted int64
	// RecordsDropped is the number of records dropped under pressure.
	RecordsDropped int64
	// DroppedByKind maps event kinds to drop counts.
	DroppedByKind map[string]int64
	// BufferSize is the current number of buffered records.
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of non-fatal errors encountered.
	Errors int64
}

// droppableKinds defines which event kinds may be dropped under buffer
// pressure. Variant, error, and terminal events must never be dropped;
// without them a replayed run diverges from the original.
var droppableKinds = map[types.EventKind]bool{
	types.EventPrompt:  true,
	types.EventSummary: true,
}

// IsDroppable returns true if the event kind may be dropped by a sink.
func IsDroppable(kind types.EventKind) bool {
	return droppableKinds[kind]
}

// Writer abstracts batch persistence for buffered sinks.
type Writer interface {
	// WriteRecords persists a batch of records, preserving order.
	WriteRecords(ctx context.Context, records []*Record) error

	// Close releases writer resources.
	Close() error
}

// StubSink is a test sink that accepts records without persisting.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	// Written stores all recorded entries for inspection.
	Written []*Record
	// Flushes is the number of Flush calls.
	Flushes int64
	// Closed indicates whether Close was called.
	Closed bool

	// ErrorOnRecord, if non-nil, is returned by Record.
	ErrorOnRecord error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// Record stores the entry without persisting.
func (s *StubSink) Record(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnRecord != nil {
		return s.ErrorOnRecord
	}
	s.Written = append(s.Written, rec)
	return nil
}

// Flush counts the flush without doing work.
func (s *StubSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Flushes++
	return nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Stats returns a snapshot of sink counters.
func (s *StubSink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		TotalRecords:     int64(len(s.Written)),
		RecordsPersisted: int64(len(s.Written)),
		DroppedByKind:    map[string]int64{},
		FlushCount:       s.Flushes,
	}
}
