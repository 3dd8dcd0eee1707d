package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/imagine/types"
)

// captureWriter records batches for assertions.
type captureWriter struct {
	mu      sync.Mutex
	batches [][]*Record
	err     error
	closed  bool
}

func (w *captureWriter) WriteRecords(_ context.Context, records []*Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	batch := make([]*Record, len(records))
	copy(batch, records)
	w.batches = append(w.batches, batch)
	return nil
}

func (w *captureWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func rec(runID string, seq int64, kind types.EventKind) *Record {
	return &Record{
		RunID: runID,
		Seq:   seq,
		At:    time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Event: &types.StreamEvent{Kind: kind, Data: json.RawMessage(`{}`)},
	}
}

func TestBufferedSink_FlushWritesInOrder(t *testing.T) {
	w := &captureWriter{}
	sink, err := NewBufferedSink(w, BufferedConfig{MaxBufferRecords: 10})
	if err != nil {
		t.Fatalf("NewBufferedSink: %v", err)
	}

	ctx := t.Context()
	for i := int64(1); i <= 3; i++ {
		if err := sink.Record(ctx, rec("run-1", i, types.EventImageVariant)); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	if len(w.batches) != 0 {
		t.Fatal("records written before flush")
	}

	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(w.batches) != 1 || len(w.batches[0]) != 3 {
		t.Fatalf("unexpected batches %v", w.batches)
	}
	for i, r := range w.batches[0] {
		if r.Seq != int64(i+1) {
			t.Errorf("batch out of order at %d: seq %d", i, r.Seq)
		}
	}

	s := sink.Stats()
	if s.TotalRecords != 3 || s.RecordsPersisted != 3 || s.FlushCount != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestBufferedSink_DropsDroppableUnderPressure(t *testing.T) {
	w := &captureWriter{}
	sink, err := NewBufferedSink(w, BufferedConfig{MaxBufferRecords: 1})
	if err != nil {
		t.Fatalf("NewBufferedSink: %v", err)
	}

	ctx := t.Context()
	if err := sink.Record(ctx, rec("run-1", 1, types.EventImageVariant)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Buffer full; prompt is droppable and must vanish silently.
	if err := sink.Record(ctx, rec("run-1", 2, types.EventPrompt)); err != nil {
		t.Fatalf("Record (droppable): %v", err)
	}

	s := sink.Stats()
	if s.RecordsDropped != 1 || s.DroppedByKind[string(types.EventPrompt)] != 1 {
		t.Errorf("unexpected drop stats %+v", s)
	}
	if len(w.batches) != 0 {
		t.Error("droppable record should not force a flush")
	}
}

func TestBufferedSink_NonDroppableForcesFlush(t *testing.T) {
	w := &captureWriter{}
	sink, err := NewBufferedSink(w, BufferedConfig{MaxBufferRecords: 1})
	if err != nil {
		t.Fatalf("NewBufferedSink: %v", err)
	}

	ctx := t.Context()
	if err := sink.Record(ctx, rec("run-1", 1, types.EventImageVariant)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Terminal events are never dropped: full buffer flushes first.
	if err := sink.Record(ctx, rec("run-1", 2, types.EventDone)); err != nil {
		t.Fatalf("Record (terminal): %v", err)
	}

	if len(w.batches) != 1 {
		t.Fatalf("expected forced flush, got %d batches", len(w.batches))
	}
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(w.batches) != 2 || w.batches[1][0].Event.Kind != types.EventDone {
		t.Errorf("terminal record lost: %v", w.batches)
	}
}

func TestBufferedSink_FlushFailurePreservesBuffer(t *testing.T) {
	w := &captureWriter{err: errors.New("storage down")}
	sink, err := NewBufferedSink(w, BufferedConfig{MaxBufferRecords: 10})
	if err != nil {
		t.Fatalf("NewBufferedSink: %v", err)
	}

	ctx := t.Context()
	if err := sink.Record(ctx, rec("run-1", 1, types.EventDone)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := sink.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}

	// Retry after the writer recovers: nothing lost.
	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if len(w.batches) != 1 || len(w.batches[0]) != 1 {
		t.Errorf("unexpected batches after retry %v", w.batches)
	}
}

func TestBufferedSink_InvalidConfig(t *testing.T) {
	if _, err := NewBufferedSink(&captureWriter{}, BufferedConfig{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestIsDroppable(t *testing.T) {
	if !IsDroppable(types.EventPrompt) || !IsDroppable(types.EventSummary) {
		t.Error("prompt and summary should be droppable")
	}
	if IsDroppable(types.EventImageVariant) || IsDroppable(types.EventError) || IsDroppable(types.EventDone) {
		t.Error("variant, error, and done must never be droppable")
	}
}
