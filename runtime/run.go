// Package runtime implements run orchestration: it opens a generation
// stream, folds its events into an ordered collection of image sets,
// and classifies how the run ended.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/imagine/archive"
	"github.com/pithecene-io/imagine/iox"
	"github.com/pithecene-io/imagine/log"
	"github.com/pithecene-io/imagine/metrics"
	"github.com/pithecene-io/imagine/types"
	"github.com/pithecene-io/imagine/wire"
)

// ErrStreamOpen marks failures before the first stream byte: transport
// faults and non-2xx responses. No observer fires for these.
var ErrStreamOpen = errors.New("failed to open generation stream")

// StreamOpener abstracts opening the generation event stream.
// The HTTP implementation posts to the backend; tests inject readers.
type StreamOpener interface {
	Open(ctx context.Context, req *types.GenerateRequest) (io.ReadCloser, error)
}

// HTTPOpener opens generation streams against the backend HTTP API.
type HTTPOpener struct {
	// BaseURL is the backend base URL without a trailing slash.
	BaseURL string
	// Client is the HTTP client; nil uses a client without timeout,
	// since a stream stays open for the whole run.
	Client *http.Client
}

// Open posts the generation request and returns the response body as
// the event stream. Any failure before the first byte is fatal to the
// run and reported to the caller, never through observers.
func (o *HTTPOpener) Open(ctx context.Context, req *types.GenerateRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.BaseURL+"/api/image/generate/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	client := o.Client
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamOpen, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		iox.DrainClose(resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrStreamOpen, resp.StatusCode)
	}
	return resp.Body, nil
}

// Observer receives run events synchronously in decode order.
// All callbacks are optional. Callbacks run on the engine goroutine;
// slow observers slow the run.
type Observer struct {
	// OnPrompt fires when the stream announces the generation prompt.
	OnPrompt func(prompt string)
	// OnVariant fires after a variant event changes a set. The set is
	// a deep copy; observers may retain it.
	OnVariant func(slot int, set *types.ImageSet)
	// OnError fires for error events surfaced by the stream.
	// Cancellation is silent and never reported here.
	OnError func(message string)
	// OnDone fires once when the terminal event arrives.
	OnDone func(payload *types.DonePayload)
}

// RunConfig configures a single run.
type RunConfig struct {
	// Request is the generation request.
	Request *types.GenerateRequest
	// Opener opens the event stream. Required.
	Opener StreamOpener
	// Observer receives run events. All callbacks optional.
	Observer Observer
	// Sink archives raw stream events. If nil, archival is disabled.
	// Sink failures are logged and never fail the run.
	Sink archive.Sink
	// Collector records run metrics. If nil, no metrics are recorded
	// (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// RunID overrides the generated run identifier. Used by replay.
	RunID string
	// Logger overrides the run logger. If nil, one is built from RunID.
	Logger *log.Logger
}

// Run is a handle to an in-flight or finished run.
// A run resolves exactly once; Outcome is stable after Done closes.
type Run struct {
	id     string
	cancel context.CancelFunc
	body   io.Closer
	done   chan struct{}

	resolveOnce sync.Once

	mu      sync.Mutex
	rec     *Reconciler
	outcome *Outcome
}

// Start opens the stream and begins reconciling in a background
// goroutine. Failure to open the stream is returned here, before any
// observer fires.
func Start(ctx context.Context, cfg *RunConfig) (*Run, error) {
	if cfg.Opener == nil {
		return nil, fmt.Errorf("run config has no stream opener")
	}
	if cfg.Request == nil {
		return nil, fmt.Errorf("run config has no generation request")
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(runID)
	}

	cfg.Collector.IncRunStarted()
	logger.Info("starting run", map[string]any{
		"theme":       cfg.Request.Theme,
		"enhancement": cfg.Request.Enhancement,
	})

	runCtx, cancel := context.WithCancel(ctx)

	body, err := cfg.Opener.Open(runCtx, cfg.Request)
	if err != nil || body == nil {
		cancel()
		cfg.Collector.IncStreamOpenFailure()
		logger.Error("failed to open stream", map[string]any{
			"error": fmt.Sprint(err),
		})
		if err == nil {
			err = fmt.Errorf("stream opener returned no body")
		}
		return nil, err
	}
	cfg.Collector.IncStreamOpenSuccess()

	r := &Run{
		id:     runID,
		cancel: cancel,
		body:   body,
		done:   make(chan struct{}),
		rec:    NewReconciler(cfg.Request.Theme, cfg.Request.Enhancement, logger),
	}

	go r.loop(runCtx, body, cfg, logger)
	return r, nil
}

// loop is the ingestion loop: decode, archive, reconcile, notify.
func (r *Run) loop(ctx context.Context, body io.ReadCloser, cfg *RunConfig, logger *log.Logger) {
	defer body.Close()

	decoder := wire.NewLineDecoder(body)
	var seq int64

	for {
		select {
		case <-ctx.Done():
			r.resolve(ctx, cfg, logger, DetermineOutcome(ctx.Err(), nil, r.doneSeen()))
			return
		default:
		}

		ev, err := decoder.Next()
		if err != nil {
			if err == io.EOF {
				r.resolve(ctx, cfg, logger, DetermineOutcome(nil, nil, r.doneSeen()))
				return
			}
			// A read error during cancel is the cancel, not a failure:
			// closing the body is how Cancel unblocks this read.
			r.resolve(ctx, cfg, logger, DetermineOutcome(ctx.Err(), err, r.doneSeen()))
			return
		}

		seq++
		r.archiveEvent(ctx, cfg, logger, ev, seq)

		if ev.Kind == types.EventError && ev.ErrorMessage() == wire.MalformedLineMessage {
			cfg.Collector.IncMalformedLines()
		}

		done := r.dispatch(ev, cfg.Observer)
		if done {
			r.resolve(ctx, cfg, logger, DetermineOutcome(nil, nil, true))
			return
		}
	}
}

// archiveEvent records one event, best effort.
func (r *Run) archiveEvent(ctx context.Context, cfg *RunConfig, logger *log.Logger, ev *types.StreamEvent, seq int64) {
	if cfg.Sink == nil {
		return
	}
	err := cfg.Sink.Record(ctx, &archive.Record{
		RunID: r.id,
		Seq:   seq,
		At:    time.Now(),
		Event: ev,
	})
	if err != nil {
		logger.Warn("archive record failed (best effort)", map[string]any{
			"seq":   seq,
			"error": err.Error(),
		})
	}
}

// dispatch applies one event and fires observers in decode order.
// Returns true when the terminal event has been applied.
func (r *Run) dispatch(ev *types.StreamEvent, obs Observer) bool {
	r.mu.Lock()
	firstDone := !r.rec.DoneSeen()
	slot, changed := r.rec.Apply(ev)

	var setCopy *types.ImageSet
	if ev.Kind == types.EventImageVariant && changed && slot >= 0 {
		setCopy = r.rec.Sets()[slot].Clone()
	}
	donePayload := r.rec.Done()
	prompt := r.rec.Prompt()
	r.mu.Unlock()

	switch ev.Kind {
	case types.EventPrompt:
		if changed && obs.OnPrompt != nil {
			obs.OnPrompt(prompt)
		}
	case types.EventImageVariant:
		if setCopy != nil && obs.OnVariant != nil {
			obs.OnVariant(slot, setCopy)
		}
	case types.EventError:
		if obs.OnError != nil {
			obs.OnError(ev.ErrorMessage())
		}
	case types.EventDone:
		if firstDone && donePayload != nil {
			if obs.OnDone != nil {
				obs.OnDone(donePayload)
			}
			return true
		}
	}
	return false
}

// resolve settles the run exactly once: flush the archive, absorb
// reconciler stats, record the outcome metric, close Done.
func (r *Run) resolve(ctx context.Context, cfg *RunConfig, logger *log.Logger, outcome *Outcome) {
	r.resolveOnce.Do(func() {
		r.mu.Lock()
		r.outcome = outcome
		stats := r.rec.Stats()
		r.mu.Unlock()

		if cfg.Sink != nil {
			// Flush must survive caller cancellation; keep context
			// values but drop the cancel signal.
			flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			if err := cfg.Sink.Flush(flushCtx); err != nil {
				logger.Warn("archive flush failed (best effort)", map[string]any{
					"error": err.Error(),
				})
				cfg.Collector.IncArchiveWriteFailure()
			} else {
				cfg.Collector.IncArchiveWriteSuccess()
			}
			flushCancel()
		}

		ignoredByKind := make(map[string]int64, len(stats.IgnoredByKind))
		for k, v := range stats.IgnoredByKind {
			ignoredByKind[k] = v
		}
		cfg.Collector.AbsorbReconcilerStats(stats.EventsReceived, stats.VariantsApplied, stats.EventsIgnored, ignoredByKind)

		switch outcome.Status {
		case OutcomeCompleted:
			cfg.Collector.IncRunCompleted()
		case OutcomeDrained:
			cfg.Collector.IncRunDrained()
		case OutcomeCanceled:
			cfg.Collector.IncRunCanceled()
		case OutcomeStreamError:
			cfg.Collector.IncRunFailed()
		}

		logger.Info("run resolved", map[string]any{
			"outcome": outcome.Status,
			"message": outcome.Message,
			"events":  stats.EventsReceived,
		})

		close(r.done)
	})
}

func (r *Run) doneSeen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.DoneSeen()
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// Cancel stops the run. Closing the body unblocks a pending read so
// cancellation takes effect immediately, not at the next event.
func (r *Run) Cancel() {
	r.cancel()
	_ = r.body.Close()
}

// Done returns a channel closed when the run resolves.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run resolves or ctx expires.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome returns the terminal classification, or nil while running.
func (r *Run) Outcome() *Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Sets returns a deep copy of the current ordered collection.
// Safe to call while the run is still streaming.
func (r *Run) Sets() []*types.ImageSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return types.CloneSets(r.rec.Sets())
}

// Prompt returns the generation prompt announced by the stream, if any.
func (r *Run) Prompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Prompt()
}

// Errors returns the stream error messages observed so far.
func (r *Run) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.rec.Errors()))
	copy(out, r.rec.Errors())
	return out
}

// DonePayload returns the terminal payload, or nil before completion.
func (r *Run) DonePayload() *types.DonePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Done()
}

// Stats returns a copy of the reconciliation counters.
func (r *Run) Stats() ReconcilerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.Stats()
}
