package runtime

import (
	"fmt"

	"github.com/pithecene-io/imagine/log"
	"github.com/pithecene-io/imagine/types"
)

// ReconcilerStats captures reconciliation counters for a single run.
type ReconcilerStats struct {
	// EventsReceived is the total number of events applied.
	EventsReceived int64
	// VariantsApplied is the number of variant overlays merged into sets.
	VariantsApplied int64
	// EventsIgnored is the number of events that changed nothing
	// (malformed payloads, unknown tags, duplicate terminals).
	EventsIgnored int64
	// IgnoredByKind breaks down ignored events by event kind.
	IgnoredByKind map[string]int64
}

// Reconciler folds a decoded event stream into an ordered collection of
// image sets. Events arrive one at a time in stream order:
//   - Slot resolution: an explicit 1-based index hint wins; otherwise the
//     backend ID locates an existing set; otherwise a new slot is appended.
//   - Variant overlays replace whole items at their enhancement level.
//   - First terminal event wins; subsequent terminals are ignored.
//
// Not safe for concurrent use; the run engine serializes Apply calls.
type Reconciler struct {
	sets   []*types.ImageSet
	byID   map[string]int
	theme  string
	rtype  string
	prompt string
	errs   []string
	done   *types.DonePayload
	logger *log.Logger
	stats  ReconcilerStats
}

// NewReconciler creates a reconciler for a run with the given theme and
// result type. Both label every set the run produces.
func NewReconciler(theme, resultType string, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.NewLogger("")
	}
	return &Reconciler{
		byID:   make(map[string]int),
		theme:  theme,
		rtype:  resultType,
		logger: logger,
		stats:  ReconcilerStats{IgnoredByKind: make(map[string]int64)},
	}
}

// Apply folds one event into the collection.
// Returns the slot the event landed on (-1 for events that do not target
// a slot) and whether any set changed. Apply never fails the run: events
// it cannot use are counted as ignored and the stream continues.
func (r *Reconciler) Apply(ev *types.StreamEvent) (slot int, changed bool) {
	r.stats.EventsReceived++

	switch ev.Kind {
	case types.EventPrompt:
		text, err := ev.Prompt()
		if err != nil {
			r.ignore(ev, "undecodable prompt payload", err)
			return -1, false
		}
		r.prompt = text
		return -1, true

	case types.EventImageVariant:
		return r.applyVariant(ev)

	case types.EventError:
		r.errs = append(r.errs, ev.ErrorMessage())
		return -1, true

	case types.EventSummary:
		// Summaries are informational; observers see them, the
		// collection does not.
		return -1, false

	case types.EventDone:
		return r.applyDone(ev)

	default:
		// Unknown kinds pass through untouched so newer backends can
		// add event types without breaking older clients.
		r.ignore(ev, "unknown event kind", nil)
		return -1, false
	}
}

// applyVariant merges one variant event into its slot.
func (r *Reconciler) applyVariant(ev *types.StreamEvent) (int, bool) {
	payload, err := ev.Variant()
	if err != nil {
		r.ignore(ev, "undecodable variant payload", err)
		return -1, false
	}

	slot := r.resolveSlot(payload)
	set := r.sets[slot]
	changed := false

	// ID backfill: first non-empty identifier wins, later values never
	// overwrite it.
	if set.ID == "" {
		if id := firstNonEmpty(payload.ID, payload.ImageID); id != "" {
			set.ID = id
			r.byID[id] = slot
			changed = true
		}
	}

	if payload.Combo != nil {
		set.Combo = *payload.Combo
		changed = true
	}
	if payload.Rationale != nil {
		set.Rationale = *payload.Rationale
		changed = true
	}

	level, levelErr := types.ParseLevel(payload.Variant)
	switch {
	case levelErr != nil:
		r.logger.Warn("skipping variant with unknown enhancement level", map[string]any{
			"slot":    slot,
			"variant": payload.Variant,
		})
		r.stats.EventsIgnored++
		r.stats.IgnoredByKind[string(ev.Kind)]++
	case payload.Image == nil || payload.Image.DataB64 == "":
		r.logger.Warn("skipping variant without image payload", map[string]any{
			"slot":    slot,
			"variant": payload.Variant,
		})
		r.stats.EventsIgnored++
		r.stats.IgnoredByKind[string(ev.Kind)]++
	default:
		set.Variants[level] = *payload.Image
		r.stats.VariantsApplied++
		changed = true
	}

	return slot, changed
}

// resolveSlot locates or creates the slot a variant payload targets.
// Index hints are 1-based; 0 is tolerated as the first slot. Hints
// beyond the current length grow the collection with empty seeded sets
// so out-of-order arrival never loses a slot.
func (r *Reconciler) resolveSlot(payload *types.VariantPayload) int {
	if payload.Index != nil {
		idx := *payload.Index - 1
		if idx < 0 {
			idx = 0
		}
		for len(r.sets) <= idx {
			r.sets = append(r.sets, types.NewImageSet(len(r.sets), types.Combo{}, r.theme, r.rtype))
		}
		return idx
	}

	if id := firstNonEmpty(payload.ID, payload.ImageID); id != "" {
		if slot, ok := r.byID[id]; ok {
			return slot
		}
	}

	r.sets = append(r.sets, types.NewImageSet(len(r.sets), types.Combo{}, r.theme, r.rtype))
	return len(r.sets) - 1
}

// applyDone handles the terminal event. First terminal wins.
func (r *Reconciler) applyDone(ev *types.StreamEvent) (int, bool) {
	if r.done != nil {
		r.logger.Warn("ignoring duplicate terminal event", map[string]any{
			"kind": ev.Kind,
		})
		r.stats.EventsIgnored++
		r.stats.IgnoredByKind[string(ev.Kind)]++
		return -1, false
	}

	payload := ev.Done()
	if payload == nil {
		payload = &types.DonePayload{}
	}
	r.done = payload

	// The terminal event carries a single backend ID, so it can name at
	// most one set. Backfill only when exactly one set lacks an ID;
	// with several candidates the assignment is ambiguous and the sets
	// keep their empty IDs.
	if payload.ID != "" {
		if _, taken := r.byID[payload.ID]; !taken {
			target := -1
			for slot, set := range r.sets {
				if set.ID != "" {
					continue
				}
				if target >= 0 {
					target = -1
					break
				}
				target = slot
			}
			if target >= 0 {
				r.sets[target].ID = payload.ID
				r.byID[payload.ID] = target
			}
		}
	}
	return -1, true
}

func (r *Reconciler) ignore(ev *types.StreamEvent, reason string, err error) {
	fields := map[string]any{"kind": ev.Kind, "reason": reason}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.logger.Warn("ignoring event", fields)
	r.stats.EventsIgnored++
	r.stats.IgnoredByKind[string(ev.Kind)]++
}

// Sets returns the live ordered collection. Callers that hand sets
// across a concurrency boundary must use types.CloneSets.
func (r *Reconciler) Sets() []*types.ImageSet {
	return r.sets
}

// Prompt returns the generation prompt announced by the stream, if any.
func (r *Reconciler) Prompt() string {
	return r.prompt
}

// Errors returns the error messages surfaced by the stream, in order.
func (r *Reconciler) Errors() []string {
	return r.errs
}

// Done returns the terminal payload, or nil before the terminal event.
func (r *Reconciler) Done() *types.DonePayload {
	return r.done
}

// DoneSeen reports whether the terminal event has been applied.
func (r *Reconciler) DoneSeen() bool {
	return r.done != nil
}

// Stats returns a copy of the reconciliation counters.
func (r *Reconciler) Stats() ReconcilerStats {
	out := r.stats
	out.IgnoredByKind = make(map[string]int64, len(r.stats.IgnoredByKind))
	for k, v := range r.stats.IgnoredByKind {
		out.IgnoredByKind[k] = v
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// MergeEdited overlays an edited variant onto a set outside the stream
// path. Used when an externally edited image replaces a candidate.
func MergeEdited(set *types.ImageSet, item types.ImageItem) error {
	if item.DataB64 == "" {
		return fmt.Errorf("edited variant has no image payload")
	}
	set.Variants[types.LevelEdited] = item
	return nil
}
