package runtime

import (
	"context"
	"fmt"

	"github.com/pithecene-io/imagine/archive"
	"github.com/pithecene-io/imagine/log"
	"github.com/pithecene-io/imagine/types"
)

// ReplayResult is the reconstruction of an archived run.
type ReplayResult struct {
	// RunID is the replayed run's identifier.
	RunID string
	// Sets is the reconstructed ordered collection.
	Sets []*types.ImageSet
	// Prompt is the generation prompt, if the archive kept it.
	Prompt string
	// Errors are the stream error messages, in order.
	Errors []string
	// Done is the terminal payload, nil if the run never completed.
	Done *types.DonePayload
	// Stats are the reconciliation counters for the replay.
	Stats ReconcilerStats
}

// RunReader abstracts the archive read path for replay.
type RunReader interface {
	ReadRun(ctx context.Context, runID string) ([]*archive.Record, error)
}

// Replay re-drives a run's archived event stream through a fresh
// reconciler. Replaying the same archive always yields the same
// collection; the reconciler is deterministic over event order.
func Replay(ctx context.Context, reader RunReader, runID, theme, resultType string, logger *log.Logger) (*ReplayResult, error) {
	records, err := reader.ReadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay failed: %w", err)
	}

	rec := NewReconciler(theme, resultType, logger)
	for _, record := range records {
		if record.Event == nil {
			continue
		}
		rec.Apply(record.Event)
	}

	return &ReplayResult{
		RunID:  runID,
		Sets:   types.CloneSets(rec.Sets()),
		Prompt: rec.Prompt(),
		Errors: rec.Errors(),
		Done:   rec.Done(),
		Stats:  rec.Stats(),
	}, nil
}
