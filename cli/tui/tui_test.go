package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/imagine/types"
)

func TestIsTUISupported(t *testing.T) {
	cases := map[string]bool{
		"gallery_recent":  true,
		"gallery_related": true,
		"version":         false,
		"run_live":        false,
	}
	for view, want := range cases {
		if got := IsTUISupported(view); got != want {
			t.Errorf("IsTUISupported(%q): got %v, want %v", view, got, want)
		}
	}
}

func TestSupportedTUIViews_AllSupported(t *testing.T) {
	for _, view := range SupportedTUIViews() {
		if !IsTUISupported(view) {
			t.Errorf("view %q listed as supported but IsTUISupported is false", view)
		}
	}
}

func TestGalleryModel_Navigation(t *testing.T) {
	items := []types.GalleryItem{
		{ID: "img-1", Theme: "halloween", Type: "invitation"},
		{ID: "img-2", Theme: "autumn", Type: "menu"},
		{ID: "img-3", Theme: "winter", Type: "card"},
	}
	m := NewGalleryModel("Recent Images", items)

	down := tea.KeyMsg{Type: tea.KeyDown}
	up := tea.KeyMsg{Type: tea.KeyUp}

	next, _ := m.Update(down)
	m = next.(GalleryModel)
	if m.cursor != 1 {
		t.Errorf("expected cursor=1 after down, got %d", m.cursor)
	}

	next, _ = m.Update(down)
	m = next.(GalleryModel)
	next, _ = m.Update(down)
	m = next.(GalleryModel)
	if m.cursor != 2 {
		t.Errorf("cursor should clamp at last item, got %d", m.cursor)
	}

	next, _ = m.Update(up)
	m = next.(GalleryModel)
	if m.cursor != 1 {
		t.Errorf("expected cursor=1 after up, got %d", m.cursor)
	}
}

func TestGalleryModel_ViewShowsItems(t *testing.T) {
	items := []types.GalleryItem{
		{ID: "img-1", Theme: "halloween", Type: "invitation",
			Combo: types.Combo{ColorPalette: "autumn", Motif: "pumpkins"}},
	}
	m := NewGalleryModel("Recent Images", items)

	view := m.View()
	if !strings.Contains(view, "img-1") {
		t.Errorf("view should list item IDs:\n%s", view)
	}
	if !strings.Contains(view, "pumpkins") {
		t.Errorf("view should show selections of highlighted item:\n%s", view)
	}
}

func TestGalleryModel_ViewEmpty(t *testing.T) {
	m := NewGalleryModel("Recent Images", nil)
	if !strings.Contains(m.View(), "(no items)") {
		t.Error("expected empty placeholder")
	}
}

func TestGalleryModel_QuitClearsView(t *testing.T) {
	m := NewGalleryModel("Recent Images", nil)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = next.(GalleryModel)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if m.View() != "" {
		t.Error("expected empty view after quit")
	}
}

func TestLiveModel_CollectsSlots(t *testing.T) {
	m := NewLiveModel("halloween", "invitation", "run-1", nil)

	next, _ := m.Update(PromptMsg{Prompt: "spooky paper goods"})
	m = next.(LiveModel)
	next, _ = m.Update(SlotMsg{Slot: 0, Variant: "original", ID: "img-1"})
	m = next.(LiveModel)
	next, _ = m.Update(SlotMsg{Slot: 0, Variant: "dark", ID: "img-1"})
	m = next.(LiveModel)
	next, _ = m.Update(SlotMsg{Slot: 2, Variant: "original", ID: "img-3"})
	m = next.(LiveModel)

	if len(m.slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(m.slots))
	}
	if len(m.slots[0].variants) != 2 {
		t.Errorf("expected 2 variants on slot 0, got %d", len(m.slots[0].variants))
	}

	view := m.View()
	if !strings.Contains(view, "spooky paper goods") {
		t.Errorf("view should show the prompt:\n%s", view)
	}
	if !strings.Contains(view, "Slot 1") || !strings.Contains(view, "Slot 3") {
		t.Errorf("view should list slots 1-based:\n%s", view)
	}
}

func TestLiveModel_OutcomeQuits(t *testing.T) {
	m := NewLiveModel("halloween", "invitation", "run-1", nil)

	next, cmd := m.Update(OutcomeMsg{Outcome: "completed"})
	m = next.(LiveModel)
	if cmd == nil {
		t.Fatal("expected quit command on outcome")
	}
	if !m.done {
		t.Error("model should be done after outcome")
	}
	if !strings.Contains(m.View(), "completed") {
		t.Error("final view should show the outcome")
	}
}

func TestLiveModel_QuitCancelsRun(t *testing.T) {
	canceled := false
	m := NewLiveModel("halloween", "invitation", "run-1", func() { canceled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !canceled {
		t.Error("quitting mid-run should cancel the run")
	}
}

func TestLiveModel_QuitAfterDoneDoesNotCancel(t *testing.T) {
	canceled := false
	m := NewLiveModel("halloween", "invitation", "run-1", func() { canceled = true })

	next, _ := m.Update(OutcomeMsg{Outcome: "completed"})
	m = next.(LiveModel)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if canceled {
		t.Error("quit after completion should not cancel")
	}
}

func TestLiveModel_CollectsErrors(t *testing.T) {
	m := NewLiveModel("halloween", "invitation", "run-1", nil)

	next, _ := m.Update(StreamErrMsg{Message: "upstream throttled"})
	m = next.(LiveModel)
	if !strings.Contains(m.View(), "upstream throttled") {
		t.Error("view should surface stream errors")
	}
}

func TestOutcomeStyle_Distinct(t *testing.T) {
	// Each terminal outcome maps to a deliberate style
	for _, outcome := range []string{"completed", "drained", "canceled", "stream_error", "unknown"} {
		_ = OutcomeStyle(outcome)
	}
	if OutcomeStyle("completed").GetForeground() != SuccessStyle.GetForeground() {
		t.Error("completed should use the success style")
	}
	if OutcomeStyle("stream_error").GetForeground() != ErrorStyle.GetForeground() {
		t.Error("stream_error should use the error style")
	}
}
