package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/imagine/types"
)

// ErrRunNotFound is returned when no archived records exist for a run.
var ErrRunNotFound = errors.New("no archived records found for run")

// LodeReader reads archived run streams back out of a dataset.
// Uses the same codec and layout as LodeWriter to ensure compatibility.
type LodeReader struct {
	dataset lode.Dataset
}

// NewLodeReader creates a reader with filesystem storage rooted at root.
func NewLodeReader(dataset, root string) (*LodeReader, error) {
	return NewLodeReaderWithFactory(dataset, lode.NewFSFactory(root))
}

// NewLodeReaderWithFactory creates a reader with a custom store factory.
func NewLodeReaderWithFactory(dataset string, factory lode.StoreFactory) (*LodeReader, error) {
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, err
	}
	return &LodeReader{dataset: ds}, nil
}

// ReadRun returns a run's archived records ordered by sequence number.
// Returns ErrRunNotFound when the archive holds nothing for the run.
func (r *LodeReader) ReadRun(ctx context.Context, runID string) ([]*Record, error) {
	snapshots, err := r.dataset.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive snapshots: %w", err)
	}

	var records []*Record
	for _, snap := range snapshots {
		if !snapshotMatchesRun(snap, runID) {
			continue
		}

		data, err := r.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read archive snapshot %s: %w", snap.ID, err)
		}

		for _, item := range data {
			row, ok := item.(map[string]any)
			if !ok {
				continue
			}
			// Manifest path filtering is coarse; record fields are
			// authoritative.
			if toString(row["run_id"]) != runID {
				continue
			}
			records = append(records, fromRow(row))
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	return records, nil
}

// snapshotMatchesRun checks a snapshot's file paths for the run partition.
func snapshotMatchesRun(snap *lode.DatasetSnapshot, runID string) bool {
	if snap.Manifest == nil {
		return false
	}
	segment := "run_id=" + runID
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

// fromRow rebuilds a record from its flattened row form.
func fromRow(row map[string]any) *Record {
	rec := &Record{
		RunID: toString(row["run_id"]),
		Seq:   toInt64(row["seq"]),
	}
	if at, err := time.Parse(time.RFC3339Nano, toString(row["at"])); err == nil {
		rec.At = at
	}
	ev := &types.StreamEvent{Kind: types.EventKind(toString(row["event"]))}
	if data := toString(row["data"]); data != "" {
		ev.Data = json.RawMessage(data)
	}
	rec.Event = ev
	return rec
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts JSON-decoded numeric forms to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
