package runtime

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pithecene-io/imagine/types"
)

func variantEvent(t *testing.T, payload string) *types.StreamEvent {
	t.Helper()
	return &types.StreamEvent{Kind: types.EventImageVariant, Data: json.RawMessage(payload)}
}

func TestReconciler_AppendsWithoutHint(t *testing.T) {
	r := NewReconciler("halloween", "Low", nil)

	slot, changed := r.Apply(variantEvent(t, `{"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="}}`))
	if slot != 0 || !changed {
		t.Fatalf("got (%d, %v), want (0, true)", slot, changed)
	}
	slot, changed = r.Apply(variantEvent(t, `{"variant":"original","image":{"mime_type":"image/png","data_b64":"Yg=="}}`))
	if slot != 1 || !changed {
		t.Fatalf("got (%d, %v), want (1, true)", slot, changed)
	}

	sets := r.Sets()
	if len(sets) != 2 {
		t.Fatalf("expected 2 sets, got %d", len(sets))
	}
	if sets[0].Slot != 0 || sets[1].Slot != 1 {
		t.Error("slots misnumbered")
	}
	if sets[0].Theme != "halloween" || sets[0].Type != "Low" {
		t.Errorf("run context not applied: %+v", sets[0])
	}
}

func TestReconciler_IndexHintWins(t *testing.T) {
	r := NewReconciler("", "", nil)

	// A 1-based hint of 3 lands on slot 2, growing the collection.
	slot, _ := r.Apply(variantEvent(t, `{"index":3,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="}}`))
	if slot != 2 {
		t.Fatalf("got slot %d, want 2", slot)
	}
	if len(r.Sets()) != 3 {
		t.Fatalf("expected 3 seeded sets, got %d", len(r.Sets()))
	}

	// Later events fill the seeded slots.
	slot, _ = r.Apply(variantEvent(t, `{"index":1,"variant":"original","image":{"mime_type":"image/png","data_b64":"Yg=="}}`))
	if slot != 0 {
		t.Fatalf("got slot %d, want 0", slot)
	}
	if len(r.Sets()) != 3 {
		t.Errorf("hint into existing range should not grow, got %d", len(r.Sets()))
	}
}

func TestReconciler_ZeroIndexTolerated(t *testing.T) {
	r := NewReconciler("", "", nil)

	slot, _ := r.Apply(variantEvent(t, `{"index":0,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="}}`))
	if slot != 0 {
		t.Errorf("index 0 should land on the first slot, got %d", slot)
	}
}

func TestReconciler_IDRoutesToExistingSlot(t *testing.T) {
	r := NewReconciler("", "", nil)

	r.Apply(variantEvent(t, `{"id":"img-1","variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="}}`))
	slot, _ := r.Apply(variantEvent(t, `{"id":"img-1","variant":"high","image":{"mime_type":"image/png","data_b64":"Yg=="}}`))
	if slot != 0 {
		t.Fatalf("ID should route to slot 0, got %d", slot)
	}

	sets := r.Sets()
	if len(sets) != 1 {
		t.Fatalf("expected 1 set, got %d", len(sets))
	}
	if len(sets[0].Variants) != 2 {
		t.Errorf("expected 2 variant levels, got %d", len(sets[0].Variants))
	}
}

func TestReconciler_VariantOverlayReplacesLevel(t *testing.T) {
	r := NewReconciler("", "", nil)

	r.Apply(variantEvent(t, `{"index":1,"variant":"low","image":{"mime_type":"image/png","data_b64":"b2xk"}}`))
	r.Apply(variantEvent(t, `{"index":1,"variant":"low","image":{"mime_type":"image/png","data_b64":"bmV3"}}`))

	set := r.Sets()[0]
	if set.Variants[types.LevelLow].DataB64 != "bmV3" {
		t.Errorf("later overlay should win: %+v", set.Variants)
	}
}

func TestReconciler_SkipsUnusableVariants(t *testing.T) {
	r := NewReconciler("", "", nil)

	// Unknown level tag.
	r.Apply(variantEvent(t, `{"index":1,"variant":"thumbnail","image":{"mime_type":"image/png","data_b64":"YQ=="}}`))
	// Missing image payload.
	r.Apply(variantEvent(t, `{"index":1,"variant":"low"}`))
	// Undecodable payload.
	r.Apply(&types.StreamEvent{Kind: types.EventImageVariant, Data: json.RawMessage(`"not an object"`)})

	if len(r.Sets()) != 1 {
		t.Fatalf("expected 1 seeded set, got %d", len(r.Sets()))
	}
	if len(r.Sets()[0].Variants) != 0 {
		t.Errorf("no variant should have been applied: %+v", r.Sets()[0].Variants)
	}

	stats := r.Stats()
	if stats.VariantsApplied != 0 {
		t.Errorf("VariantsApplied = %d, want 0", stats.VariantsApplied)
	}
	if stats.EventsIgnored != 3 {
		t.Errorf("EventsIgnored = %d, want 3", stats.EventsIgnored)
	}
}

func TestReconciler_MetadataMergesWithoutImage(t *testing.T) {
	r := NewReconciler("", "", nil)

	// Rationale and combo arrive on an event whose image is unusable.
	r.Apply(variantEvent(t, `{"index":1,"variant":"low","rationale":"muted palette","combo":{"motif":"bats"}}`))

	set := r.Sets()[0]
	if set.Rationale != "muted palette" {
		t.Errorf("rationale not merged: %q", set.Rationale)
	}
	if set.Combo.Motif != "bats" {
		t.Errorf("combo not merged: %+v", set.Combo)
	}
}

func TestReconciler_RationaleOnlyReplacedWhenPresent(t *testing.T) {
	r := NewReconciler("", "", nil)

	r.Apply(variantEvent(t, `{"index":1,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="},"rationale":"first"}`))
	// Absent rationale leaves the existing one alone.
	r.Apply(variantEvent(t, `{"index":1,"variant":"low","image":{"mime_type":"image/png","data_b64":"Yg=="}}`))

	if got := r.Sets()[0].Rationale; got != "first" {
		t.Errorf("rationale = %q, want %q", got, "first")
	}
}

func TestReconciler_IDBackfillFirstWins(t *testing.T) {
	r := NewReconciler("", "", nil)

	r.Apply(variantEvent(t, `{"index":1,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="},"id":"first-id"}`))
	r.Apply(variantEvent(t, `{"index":1,"variant":"low","image":{"mime_type":"image/png","data_b64":"Yg=="},"id":"second-id"}`))

	if got := r.Sets()[0].ID; got != "first-id" {
		t.Errorf("ID = %q, want %q", got, "first-id")
	}
}

func TestReconciler_DoneBackfillsIDs(t *testing.T) {
	r := NewReconciler("", "", nil)

	r.Apply(variantEvent(t, `{"index":1,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="}}`))
	r.Apply(variantEvent(t, `{"index":2,"variant":"original","image":{"mime_type":"image/png","data_b64":"Yg=="},"id":"own-id"}`))
	r.Apply(&types.StreamEvent{Kind: types.EventDone, Data: json.RawMessage(`{"id":"20260829_1200","theme":"halloween"}`)})

	sets := r.Sets()
	if sets[0].ID != "20260829_1200" {
		t.Errorf("slot 0 ID = %q, want backfill", sets[0].ID)
	}
	if sets[1].ID != "own-id" {
		t.Errorf("slot 1 ID = %q, existing ID must survive", sets[1].ID)
	}
}

func TestReconciler_DoneBackfillSkipsAmbiguousSets(t *testing.T) {
	r := NewReconciler("", "", nil)

	// Two sets without IDs: a single terminal ID cannot name both.
	r.Apply(variantEvent(t, `{"index":1,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="}}`))
	r.Apply(variantEvent(t, `{"index":2,"variant":"original","image":{"mime_type":"image/png","data_b64":"Yg=="}}`))
	r.Apply(&types.StreamEvent{Kind: types.EventDone, Data: json.RawMessage(`{"id":"stamp-1"}`)})

	seen := 0
	for _, set := range r.Sets() {
		if set.ID == "stamp-1" {
			seen++
		}
		if set.ID != "" && set.ID != "stamp-1" {
			t.Errorf("unexpected ID %q", set.ID)
		}
	}
	if seen != 0 {
		t.Errorf("%d sets claimed the terminal ID, want 0", seen)
	}
}

func TestReconciler_DoneBackfillSkipsTakenID(t *testing.T) {
	r := NewReconciler("", "", nil)

	r.Apply(variantEvent(t, `{"index":1,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="},"id":"stamp-1"}`))
	r.Apply(variantEvent(t, `{"index":2,"variant":"original","image":{"mime_type":"image/png","data_b64":"Yg=="}}`))
	r.Apply(&types.StreamEvent{Kind: types.EventDone, Data: json.RawMessage(`{"id":"stamp-1"}`)})

	if got := r.Sets()[1].ID; got != "" {
		t.Errorf("slot 1 ID = %q, duplicate of slot 0 must not backfill", got)
	}
}

func TestReconciler_FirstTerminalWins(t *testing.T) {
	r := NewReconciler("", "", nil)

	r.Apply(&types.StreamEvent{Kind: types.EventDone, Data: json.RawMessage(`{"id":"first"}`)})
	r.Apply(&types.StreamEvent{Kind: types.EventDone, Data: json.RawMessage(`{"id":"second"}`)})

	if !r.DoneSeen() {
		t.Fatal("terminal not recorded")
	}
	if r.Done().ID != "first" {
		t.Errorf("Done().ID = %q, want %q", r.Done().ID, "first")
	}
	if r.Stats().IgnoredByKind[string(types.EventDone)] != 1 {
		t.Error("duplicate terminal should be counted as ignored")
	}
}

func TestReconciler_PromptAndErrors(t *testing.T) {
	r := NewReconciler("", "", nil)

	r.Apply(&types.StreamEvent{Kind: types.EventPrompt, Data: json.RawMessage(`"a plaid cup"`)})
	r.Apply(&types.StreamEvent{Kind: types.EventError, Data: json.RawMessage(`{"message":"slot 2 failed"}`)})
	r.Apply(&types.StreamEvent{Kind: types.EventError, Data: json.RawMessage(`"bare failure"`)})

	if r.Prompt() != "a plaid cup" {
		t.Errorf("prompt = %q", r.Prompt())
	}
	errs := r.Errors()
	if len(errs) != 2 || errs[0] != "slot 2 failed" || errs[1] != "bare failure" {
		t.Errorf("errors = %v", errs)
	}
}

func TestReconciler_UnknownKindIgnored(t *testing.T) {
	r := NewReconciler("", "", nil)

	slot, changed := r.Apply(&types.StreamEvent{Kind: types.EventKind("progress"), Data: json.RawMessage(`{"pct":50}`)})
	if slot != -1 || changed {
		t.Errorf("got (%d, %v), want (-1, false)", slot, changed)
	}
	if r.Stats().IgnoredByKind["progress"] != 1 {
		t.Error("unknown kind should be counted as ignored")
	}
}

func TestReconciler_Deterministic(t *testing.T) {
	events := []*types.StreamEvent{
		{Kind: types.EventPrompt, Data: json.RawMessage(`"p"`)},
		variantEvent(t, `{"index":2,"variant":"original","image":{"mime_type":"image/png","data_b64":"Yg=="}}`),
		variantEvent(t, `{"index":1,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="},"id":"a"}`),
		variantEvent(t, `{"id":"a","variant":"high","image":{"mime_type":"image/png","data_b64":"aA=="}}`),
		{Kind: types.EventDone, Data: json.RawMessage(`{"id":"final"}`)},
	}

	run := func() string {
		r := NewReconciler("t", "Low", nil)
		for _, ev := range events {
			r.Apply(ev)
		}
		out, _ := json.Marshal(r.Sets())
		return string(out)
	}

	first := run()
	for i := 0; i < 3; i++ {
		if got := run(); got != first {
			t.Fatalf("replay %d diverged:\n%s\nvs\n%s", i, got, first)
		}
	}
}

func TestMergeEdited(t *testing.T) {
	set := types.NewImageSet(0, types.Combo{}, "t", "Low")
	if err := MergeEdited(set, types.ImageItem{MimeType: "image/png", DataB64: "ZQ=="}); err != nil {
		t.Fatalf("MergeEdited: %v", err)
	}
	if !set.Edited() {
		t.Error("set should report edited")
	}
	if err := MergeEdited(set, types.ImageItem{}); err == nil {
		t.Error("empty payload should be rejected")
	}
}

func TestReconciler_StatsCopy(t *testing.T) {
	r := NewReconciler("", "", nil)
	r.Apply(&types.StreamEvent{Kind: types.EventKind("progress")})

	s := r.Stats()
	s.IgnoredByKind["progress"] = 99
	if r.Stats().IgnoredByKind["progress"] != 1 {
		t.Error("stats map aliases reconciler state")
	}
}

func TestReconciler_ManySlots(t *testing.T) {
	r := NewReconciler("", "", nil)
	for i := 1; i <= 6; i++ {
		payload := fmt.Sprintf(`{"index":%d,"variant":"original","image":{"mime_type":"image/png","data_b64":"YQ=="}}`, i)
		r.Apply(variantEvent(t, payload))
	}
	if len(r.Sets()) != 6 {
		t.Fatalf("expected 6 sets, got %d", len(r.Sets()))
	}
	if r.Stats().VariantsApplied != 6 {
		t.Errorf("VariantsApplied = %d, want 6", r.Stats().VariantsApplied)
	}
}
