// Package state holds client application state: the current run's
// collection, selection, and the paged galleries around it.
package state

import (
	"fmt"
	"sync"

	"github.com/pithecene-io/imagine/gallery"
	"github.com/pithecene-io/imagine/log"
	"github.com/pithecene-io/imagine/metrics"
	"github.com/pithecene-io/imagine/runtime"
	"github.com/pithecene-io/imagine/types"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// PageLimit is the page size for all collections.
	PageLimit int
	// Logger is optional.
	Logger *log.Logger
	// Collector is optional; nil records nothing.
	Collector *metrics.Collector
}

// Store is the client's application state: the adopted run collection,
// slot selection and display levels, and the recent, related, and
// session galleries. Thread-safe.
type Store struct {
	mu sync.Mutex

	runID    string
	theme    string
	rtype    string
	sets     []*types.ImageSet
	selected int
	levels   map[int]types.Level

	recent  *gallery.Collection
	related *gallery.Collection
	session *gallery.Collection

	// relatedKey is what the related gallery should be showing;
	// relatedLoadedKey is what it actually holds. They diverge when a
	// prefetch loaded results before the selection changed.
	relatedKey       string
	relatedLoadedKey string
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	collCfg := gallery.CollectionConfig{
		Limit:     cfg.PageLimit,
		Logger:    cfg.Logger,
		Collector: cfg.Collector,
	}
	return &Store{
		selected: -1,
		levels:   make(map[int]types.Level),
		recent:   gallery.NewCollection(collCfg),
		related:  gallery.NewCollection(collCfg),
		session:  gallery.NewCollection(collCfg),
	}
}

// AdoptRun replaces the current collection with a finished run's sets.
// Sets are deep-copied so the run handle and the store never share
// state. Selection and display levels reset; completed sets join the
// session gallery.
func (s *Store) AdoptRun(runID, theme, resultType string, sets []*types.ImageSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runID = runID
	s.theme = theme
	s.rtype = resultType
	s.sets = types.CloneSets(sets)
	s.levels = make(map[int]types.Level)
	if len(s.sets) > 0 {
		s.selected = 0
	} else {
		s.selected = -1
	}

	items := make([]types.GalleryItem, 0, len(s.sets))
	seen := make(map[string]bool, len(s.sets))
	for _, set := range s.sets {
		if set.ID == "" || len(set.Variants) == 0 || seen[set.ID] {
			continue
		}
		if _, exists := s.session.Get(set.ID); exists {
			continue
		}
		seen[set.ID] = true
		items = append(items, types.GalleryItem{
			ID:       set.ID,
			Type:     set.Type,
			Theme:    set.Theme,
			Variants: set.Variants,
			Combo:    set.Combo,
		})
	}
	// Total counts only items the session did not already hold.
	s.session.Merge(types.Page{Items: items, Total: s.session.Total() + len(items)}, true)
}

// RunID returns the adopted run's identifier.
func (s *Store) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Sets returns a deep copy of the current collection.
func (s *Store) Sets() []*types.ImageSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneSets(s.sets)
}

// Len returns the number of sets in the current collection.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

// Set returns a deep copy of the set at the given slot.
func (s *Store) Set(slot int) (*types.ImageSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.sets) {
		return nil, fmt.Errorf("slot %d out of range [0,%d)", slot, len(s.sets))
	}
	return s.sets[slot].Clone(), nil
}

// SelectSlot focuses a slot. The focused set drives the related query.
func (s *Store) SelectSlot(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.sets) {
		return fmt.Errorf("slot %d out of range [0,%d)", slot, len(s.sets))
	}
	s.selected = slot
	return nil
}

// SelectedSlot returns the focused slot, -1 when nothing is focused.
func (s *Store) SelectedSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Selected returns a deep copy of the focused set, nil when none.
func (s *Store) Selected() *types.ImageSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected < 0 || s.selected >= len(s.sets) {
		return nil
	}
	return s.sets[s.selected].Clone()
}

// SetLevel records the display level for a slot.
func (s *Store) SetLevel(slot int, level types.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.sets) {
		return fmt.Errorf("slot %d out of range [0,%d)", slot, len(s.sets))
	}
	s.levels[slot] = level
	return nil
}

// LevelFor returns the display level for a slot.
// Defaults to edited when an edited overlay exists, otherwise original.
func (s *Store) LevelFor(slot int) types.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level, ok := s.levels[slot]; ok {
		return level
	}
	if slot >= 0 && slot < len(s.sets) && s.sets[slot].Edited() {
		return types.LevelEdited
	}
	return types.LevelOriginal
}

// ApplyEdited overlays an externally edited image onto a slot and makes
// it the displayed level.
func (s *Store) ApplyEdited(slot int, item types.ImageItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.sets) {
		return fmt.Errorf("slot %d out of range [0,%d)", slot, len(s.sets))
	}
	if err := runtime.MergeEdited(s.sets[slot], item); err != nil {
		return err
	}
	s.levels[slot] = types.LevelEdited
	return nil
}

// Recent returns the recent-images gallery.
func (s *Store) Recent() *gallery.Collection {
	return s.recent
}

// Related returns the related-images gallery.
func (s *Store) Related() *gallery.Collection {
	return s.related
}

// Session returns the gallery of sets completed this session.
func (s *Store) Session() *gallery.Collection {
	return s.session
}

// RelatedQuery builds the related query for the focused set, or nil
// when nothing is focused.
func (s *Store) RelatedQuery() *types.RelatedQuery {
	set := s.Selected()
	if set == nil {
		return nil
	}
	q := types.RelatedQueryFor(set)
	return &q
}

// SetRelatedKey declares which results the related gallery should show.
// A key change resets the gallery so stale results never render, unless
// a prefetch already loaded this exact key, in which case the cursor is
// aligned to the prefetched items and paging continues from there.
func (s *Store) SetRelatedKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == s.relatedKey {
		return
	}
	s.relatedKey = key

	if key != "" && key == s.relatedLoadedKey {
		s.related.AlignCursor()
		return
	}
	s.related.Reset()
	s.relatedLoadedKey = ""
}

// MarkRelatedLoaded records that the related gallery now holds results
// for the given key. Called after a fetch or prefetch lands.
func (s *Store) MarkRelatedLoaded(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relatedLoadedKey = key
}

// RelatedKey returns the key the related gallery should be showing.
func (s *Store) RelatedKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relatedKey
}

// Delete removes an image by ID everywhere: all galleries and the
// current collection. Slots renumber; selection clamps.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.recent.Remove(id)
	removed = s.related.Remove(id) || removed
	removed = s.session.Remove(id) || removed

	kept := s.sets[:0]
	levels := make(map[int]types.Level, len(s.levels))
	for _, set := range s.sets {
		if set.ID == id {
			removed = true
			continue
		}
		if level, ok := s.levels[set.Slot]; ok {
			levels[len(kept)] = level
		}
		kept = append(kept, set)
	}
	s.sets = kept
	s.levels = levels
	for i, set := range s.sets {
		set.Slot = i
	}
	if s.selected >= len(s.sets) {
		s.selected = len(s.sets) - 1
	}
	return removed
}
