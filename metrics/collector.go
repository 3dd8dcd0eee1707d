// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies. Reconciliation counters are absorbed from the
// reconciler's stats at run completion rather than recorded live, avoiding
// double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsDrained   int64
	RunsCanceled  int64
	RunsFailed    int64

	// Reconciliation (absorbed from reconciler stats at run completion)
	EventsReceived  int64
	VariantsApplied int64
	EventsIgnored   int64
	IgnoredByKind   map[string]int64

	// Stream
	StreamOpenSuccess int64
	StreamOpenFailure int64
	MalformedLines    int64

	// Gallery
	GalleryFetchSuccess int64
	GalleryFetchFailure int64
	GalleryCacheHits    int64

	// Archive
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64

	// Dimensions (informational, set at construction)
	Theme      string
	ResultType string
	RunID      string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe,
// so callers never guard metric calls with nil checks.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsDrained   int64
	runsCanceled  int64
	runsFailed    int64

	streamOpenSuccess int64
	streamOpenFailure int64
	malformedLines    int64

	galleryFetchSuccess int64
	galleryFetchFailure int64
	galleryCacheHits    int64

	archiveWriteSuccess int64
	archiveWriteFailure int64

	// Reconciliation (set once via AbsorbReconcilerStats)
	eventsReceived  int64
	variantsApplied int64
	eventsIgnored   int64
	ignoredByKind   map[string]int64

	theme      string
	resultType string
	runID      string
}

// NewCollector creates a Collector with dimension labels.
// All dimensions are optional; empty strings are preserved as-is.
func NewCollector(theme, resultType, runID string) *Collector {
	return &Collector{
		ignoredByKind: make(map[string]int64),
		theme:         theme,
		resultType:    resultType,
		runID:         runID,
	}
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()
}

// IncRunCompleted records a run that reached its terminal event.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCompleted++
	c.mu.Unlock()
}

// IncRunDrained records a run whose stream ended without a terminal event.
func (c *Collector) IncRunDrained() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsDrained++
	c.mu.Unlock()
}

// IncRunCanceled records a caller-initiated cancellation.
func (c *Collector) IncRunCanceled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCanceled++
	c.mu.Unlock()
}

// IncRunFailed records a run ended by a stream failure.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsFailed++
	c.mu.Unlock()
}

// --- Stream ---

// IncStreamOpenSuccess records a successfully opened generation stream.
func (c *Collector) IncStreamOpenSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamOpenSuccess++
	c.mu.Unlock()
}

// IncStreamOpenFailure records a failed stream open.
func (c *Collector) IncStreamOpenFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamOpenFailure++
	c.mu.Unlock()
}

// IncMalformedLines records a stream record that failed JSON decoding.
func (c *Collector) IncMalformedLines() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.malformedLines++
	c.mu.Unlock()
}

// --- Gallery ---

// IncGalleryFetchSuccess records a successful gallery page fetch (per-call).
func (c *Collector) IncGalleryFetchSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.galleryFetchSuccess++
	c.mu.Unlock()
}

// IncGalleryFetchFailure records a failed gallery page fetch (per-call).
func (c *Collector) IncGalleryFetchFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.galleryFetchFailure++
	c.mu.Unlock()
}

// IncGalleryCacheHits records a page served from the local collection
// without a network fetch.
func (c *Collector) IncGalleryCacheHits() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.galleryCacheHits++
	c.mu.Unlock()
}

// --- Archive ---

// IncArchiveWriteSuccess records a successful archive write operation (per-call).
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteSuccess++
	c.mu.Unlock()
}

// IncArchiveWriteFailure records a failed archive write operation (per-call).
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveWriteFailure++
	c.mu.Unlock()
}

// --- Reconciliation (absorbed from reconciler stats) ---

// AbsorbReconcilerStats copies reconciliation counters into the collector.
// Called once after run completion with the final reconciler stats.
// The ignoredByKind map keys are string-typed event kinds to keep this
// package free of dependencies on the types package.
func (c *Collector) AbsorbReconcilerStats(received, applied, ignored int64, ignoredByKind map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsReceived = received
	c.variantsApplied = applied
	c.eventsIgnored = ignored
	c.ignoredByKind = make(map[string]int64, len(ignoredByKind))
	for k, v := range ignoredByKind {
		c.ignoredByKind[k] = v
	}
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ignored := make(map[string]int64, len(c.ignoredByKind))
	for k, v := range c.ignoredByKind {
		ignored[k] = v
	}

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsDrained:   c.runsDrained,
		RunsCanceled:  c.runsCanceled,
		RunsFailed:    c.runsFailed,

		EventsReceived:  c.eventsReceived,
		VariantsApplied: c.variantsApplied,
		EventsIgnored:   c.eventsIgnored,
		IgnoredByKind:   ignored,

		StreamOpenSuccess: c.streamOpenSuccess,
		StreamOpenFailure: c.streamOpenFailure,
		MalformedLines:    c.malformedLines,

		GalleryFetchSuccess: c.galleryFetchSuccess,
		GalleryFetchFailure: c.galleryFetchFailure,
		GalleryCacheHits:    c.galleryCacheHits,

		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		Theme:      c.theme,
		ResultType: c.resultType,
		RunID:      c.runID,
	}
}
