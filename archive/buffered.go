package archive

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/imagine/log"
)

// BufferedConfig configures a BufferedSink.
type BufferedConfig struct {
	// MaxBufferRecords is the maximum number of records to buffer.
	// Zero means no limit (use MaxBufferBytes instead).
	MaxBufferRecords int

	// MaxBufferBytes is the maximum buffer size in bytes (estimated
	// from base64 payload lengths). Zero means no limit.
	// At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for sink observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for a buffered sink.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferRecords: 500,
		MaxBufferBytes:   64 * 1024 * 1024,
	}
}

// ErrBufferFull is returned when the buffer is full and the record is
// not droppable.
var ErrBufferFull = errors.New("buffer full: cannot accept non-droppable record")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferRecords or MaxBufferBytes must be set")

// BufferedSink accumulates records and writes them in batches.
//
//   - Bounded buffer with explicit limits
//   - May drop: prompt, summary
//   - Must NOT drop: image_variant, error, done
//   - Batch writes on Flush; the run engine flushes on every
//     termination path
type BufferedSink struct {
	writer Writer
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state and stats together
	buffer      []*Record
	bufferBytes int64
	stats       Stats
}

// NewBufferedSink creates a buffered sink over a batch writer.
// Returns error if config is invalid.
func NewBufferedSink(writer Writer, config BufferedConfig) (*BufferedSink, error) {
	if config.MaxBufferRecords <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}
	return &BufferedSink{
		writer: writer,
		config: config,
		logger: config.Logger,
		stats:  Stats{DroppedByKind: make(map[string]int64)},
	}, nil
}

// Record buffers one stream event.
// When the buffer is full, droppable kinds are dropped silently and
// non-droppable kinds force a synchronous flush before buffering.
func (s *BufferedSink) Record(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalRecords++

	if s.full(rec) {
		if IsDroppable(rec.Event.Kind) {
			s.stats.RecordsDropped++
			s.stats.DroppedByKind[string(rec.Event.Kind)]++
			if s.logger != nil {
				s.logger.Debug("dropping record under buffer pressure", map[string]any{
					"kind": rec.Event.Kind,
					"seq":  rec.Seq,
				})
			}
			return nil
		}
		if err := s.flushLocked(ctx); err != nil {
			s.stats.Errors++
			return err
		}
	}

	s.buffer = append(s.buffer, rec)
	s.bufferBytes += estimateSize(rec)
	s.stats.BufferSize = int64(len(s.buffer))
	return nil
}

// full reports whether accepting rec would exceed a configured limit.
// Caller must hold s.mu.
func (s *BufferedSink) full(rec *Record) bool {
	if s.config.MaxBufferRecords > 0 && len(s.buffer) >= s.config.MaxBufferRecords {
		return true
	}
	if s.config.MaxBufferBytes > 0 && s.bufferBytes+estimateSize(rec) > s.config.MaxBufferBytes {
		return true
	}
	return false
}

// Flush writes all buffered records in order.
// The buffer is preserved on failure so a retry loses nothing.
func (s *BufferedSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked performs the flush. Caller must hold s.mu.
func (s *BufferedSink) flushLocked(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}

	if err := s.writer.WriteRecords(ctx, s.buffer); err != nil {
		s.stats.Errors++
		return err
	}

	s.stats.RecordsPersisted += int64(len(s.buffer))
	s.stats.FlushCount++
	s.buffer = nil
	s.bufferBytes = 0
	s.stats.BufferSize = 0
	return nil
}

// Close flushes remaining records and closes the writer.
func (s *BufferedSink) Close() error {
	ctx := context.Background()
	flushErr := s.Flush(ctx)
	closeErr := s.writer.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Stats returns an atomic snapshot of sink counters.
func (s *BufferedSink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.DroppedByKind = make(map[string]int64, len(s.stats.DroppedByKind))
	for k, v := range s.stats.DroppedByKind {
		out.DroppedByKind[k] = v
	}
	return out
}

// estimateSize approximates a record's memory footprint from its payload.
func estimateSize(rec *Record) int64 {
	size := int64(64)
	if rec.Event != nil {
		size += int64(len(rec.Event.Data))
	}
	return size
}

var _ Sink = (*BufferedSink)(nil)
var _ Sink = (*StubSink)(nil)
