package runtime

import (
	"context"
	"errors"
	"fmt"
)

// OutcomeStatus classifies how a run ended.
type OutcomeStatus string

const (
	// OutcomeCompleted means the stream delivered its terminal event.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeDrained means the stream ended cleanly without a terminal
	// event. The partial collection is kept.
	OutcomeDrained OutcomeStatus = "drained"
	// OutcomeCanceled means the caller canceled the run.
	OutcomeCanceled OutcomeStatus = "canceled"
	// OutcomeStreamError means the stream failed mid-run.
	OutcomeStreamError OutcomeStatus = "stream_error"
)

// Outcome is the terminal classification of a run.
type Outcome struct {
	Status  OutcomeStatus
	Message string
	// Err is the underlying failure for stream_error outcomes, nil otherwise.
	Err error
}

// DetermineOutcome classifies a finished ingestion loop.
// Outcome is determined by, in precedence order:
//  1. Caller cancellation (checked first: a read error caused by closing
//     the body during cancel is still a cancel, not a stream failure)
//  2. Stream read failure
//  3. Presence of the terminal event
func DetermineOutcome(ctxErr, streamErr error, doneSeen bool) *Outcome {
	switch {
	case ctxErr != nil:
		return &Outcome{
			Status:  OutcomeCanceled,
			Message: "run canceled",
		}
	case streamErr != nil:
		return &Outcome{
			Status:  OutcomeStreamError,
			Message: fmt.Sprintf("stream error: %v", streamErr),
			Err:     streamErr,
		}
	case doneSeen:
		return &Outcome{
			Status:  OutcomeCompleted,
			Message: "run completed",
		}
	default:
		return &Outcome{
			Status:  OutcomeDrained,
			Message: "stream ended without terminal event",
		}
	}
}

// IsCanceled reports whether an error represents caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
