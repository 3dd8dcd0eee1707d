// Package adapter defines the notification boundary for finished runs.
//
// Adapters publish run completion notifications to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/imagine/runtime"
)

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	EventType  string `json:"event_type"` // always "run_completed"
	RunID      string `json:"run_id"`
	Theme      string `json:"theme"`
	Type       string `json:"type"`
	Outcome    string `json:"outcome"` // completed, drained, canceled, stream_error
	SetCount   int    `json:"set_count"`
	EventCount int64  `json:"event_count"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"` // ISO 8601
}

// NewRunCompletedEvent builds the notification payload for a resolved run.
func NewRunCompletedEvent(runID, theme, resultType string, outcome *runtime.Outcome, setCount int, eventCount int64, duration time.Duration) *RunCompletedEvent {
	status := ""
	if outcome != nil {
		status = string(outcome.Status)
	}
	return &RunCompletedEvent{
		EventType:  "run_completed",
		RunID:      runID,
		Theme:      theme,
		Type:       resultType,
		Outcome:    status,
		SetCount:   setCount,
		EventCount: eventCount,
		DurationMs: duration.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Adapter publishes run completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
