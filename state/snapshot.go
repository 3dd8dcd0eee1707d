package state

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/imagine/gallery"
	"github.com/pithecene-io/imagine/types"
)

// snapshotVersion guards against restoring snapshots written by an
// incompatible build.
const snapshotVersion = 1

// snapshot is the serialized form of a Store.
type snapshot struct {
	Version  int               `msgpack:"version"`
	RunID    string            `msgpack:"run_id"`
	Theme    string            `msgpack:"theme"`
	Type     string            `msgpack:"type"`
	Sets     []*types.ImageSet `msgpack:"sets"`
	Selected int               `msgpack:"selected"`
	Levels   map[int]string    `msgpack:"levels"`

	RelatedKey       string `msgpack:"related_key"`
	RelatedLoadedKey string `msgpack:"related_loaded_key"`

	Recent  snapshotGallery `msgpack:"recent"`
	Related snapshotGallery `msgpack:"related"`
	Session snapshotGallery `msgpack:"session"`
}

// snapshotGallery is the serialized form of one collection.
type snapshotGallery struct {
	Items []types.GalleryItem `msgpack:"items"`
	Total int                 `msgpack:"total"`
}

// Snapshot serializes the store so a later session can resume it.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	levels := make(map[int]string, len(s.levels))
	for slot, level := range s.levels {
		levels[slot] = string(level)
	}
	snap := snapshot{
		Version:          snapshotVersion,
		RunID:            s.runID,
		Theme:            s.theme,
		Type:             s.rtype,
		Sets:             types.CloneSets(s.sets),
		Selected:         s.selected,
		Levels:           levels,
		RelatedKey:       s.relatedKey,
		RelatedLoadedKey: s.relatedLoadedKey,
	}
	s.mu.Unlock()

	snap.Recent = snapshotGallery{Items: s.recent.Items(), Total: s.recent.Total()}
	snap.Related = snapshotGallery{Items: s.related.Items(), Total: s.related.Total()}
	snap.Session = snapshotGallery{Items: s.session.Items(), Total: s.session.Total()}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the store's contents from a snapshot.
func (s *Store) Restore(data []byte) error {
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode state snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	levels := make(map[int]types.Level, len(snap.Levels))
	for slot, raw := range snap.Levels {
		level, err := types.ParseLevel(raw)
		if err != nil {
			continue
		}
		levels[slot] = level
	}

	s.mu.Lock()
	s.runID = snap.RunID
	s.theme = snap.Theme
	s.rtype = snap.Type
	s.sets = snap.Sets
	s.selected = snap.Selected
	if s.selected >= len(s.sets) {
		s.selected = len(s.sets) - 1
	}
	s.levels = levels
	s.relatedKey = snap.RelatedKey
	s.relatedLoadedKey = snap.RelatedLoadedKey
	s.mu.Unlock()

	restoreGallery(s.recent, snap.Recent)
	restoreGallery(s.related, snap.Related)
	restoreGallery(s.session, snap.Session)
	return nil
}

// restoreGallery refills a collection and aligns its cursor so paging
// resumes after the restored items.
func restoreGallery(c *gallery.Collection, snap snapshotGallery) {
	c.Merge(types.Page{Items: snap.Items, Total: snap.Total}, false)
	c.AlignCursor()
}
