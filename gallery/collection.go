// Package gallery maintains client-side paged collections of generated
// images and the HTTP client that feeds them.
package gallery

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/imagine/log"
	"github.com/pithecene-io/imagine/metrics"
	"github.com/pithecene-io/imagine/types"
)

// ErrFetchInFlight is returned when a page load is requested while a
// previous load is still running.
var ErrFetchInFlight = errors.New("page fetch already in flight")

// FetchFunc loads one server page at the given cursor.
type FetchFunc func(ctx context.Context, offset, limit int) (types.Page, error)

// CollectionConfig configures a Collection.
type CollectionConfig struct {
	// Limit is the page size. Must be positive.
	Limit int
	// Logger is optional.
	Logger *log.Logger
	// Collector is optional; nil records nothing.
	Collector *metrics.Collector
}

// Collection is a deduplicated, append-ordered cache of gallery items
// with offset/limit paging state.
//
// Items are keyed by ID; a re-fetched item keeps its first position and
// first contents. Paging state tracks how far the server has been read
// and whether more pages exist. Thread-safe.
type Collection struct {
	mu        sync.Mutex
	items     []types.GalleryItem
	index     map[string]int
	total     int
	limit     int
	offset    int
	hasMore   bool
	busy      bool
	logger    *log.Logger
	collector *metrics.Collector
}

// NewCollection creates an empty collection.
func NewCollection(cfg CollectionConfig) *Collection {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 20
	}
	return &Collection{
		index:     make(map[string]int),
		limit:     limit,
		logger:    cfg.Logger,
		collector: cfg.Collector,
	}
}

// Merge folds one server page into the collection and advances paging
// state. With appendMode false the collection is replaced. Returns the
// number of items actually added after deduplication.
func (c *Collection) Merge(page types.Page, appendMode bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergeLocked(page, appendMode)
}

// mergeLocked performs the merge. Caller must hold c.mu.
func (c *Collection) mergeLocked(page types.Page, appendMode bool) int {
	if !appendMode {
		c.items = nil
		c.index = make(map[string]int)
		c.offset = 0
	}

	added := 0
	for _, item := range page.Items {
		if item.ID == "" {
			continue
		}
		if _, seen := c.index[item.ID]; seen {
			// First appearance wins; duplicates across page
			// boundaries are dropped.
			continue
		}
		c.index[item.ID] = len(c.items)
		c.items = append(c.items, item)
		added++
	}

	c.total = page.Total
	if page.NextOffset > 0 {
		c.offset = page.NextOffset
	} else {
		c.offset += len(page.Items)
	}

	if page.HasMore != nil {
		c.hasMore = *page.HasMore
	} else {
		// Server omitted the flag; derive it from the cursor.
		c.hasMore = c.offset < c.total && len(c.items) > 0
	}
	return added
}

// Covered reports whether the given 0-based page is already fully held
// by the cache, so paging to it needs no fetch.
func (c *Collection) Covered(page int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) >= (page+1)*c.limit
}

// LoadPage ensures the given 0-based page is loaded.
//
// A page already covered by the cache is a cache hit and triggers no
// fetch. Fetch failures stop paging but leave cached items and the last
// server-reported total intact; they are logged, counted, and never
// propagated. Only one load may be in flight at a time; concurrent
// calls get ErrFetchInFlight.
func (c *Collection) LoadPage(ctx context.Context, fetch FetchFunc, page int, appendMode bool) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrFetchInFlight
	}
	if appendMode && len(c.items) >= (page+1)*c.limit {
		c.collector.IncGalleryCacheHits()
		// Covered navigation refreshes has_more against the latest
		// known total without touching the server.
		c.hasMore = c.offset < c.total && len(c.items) > 0
		c.mu.Unlock()
		return nil
	}
	c.busy = true
	offset := page * c.limit
	limit := c.limit
	c.mu.Unlock()

	result, err := fetch(ctx, offset, limit)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		if c.logger != nil {
			c.logger.Warn("page fetch failed", map[string]any{
				"offset": offset,
				"error":  err.Error(),
			})
		}
		c.collector.IncGalleryFetchFailure()
		// The fault is scoped to this call: cached items and the last
		// server-reported total survive, only paging stops.
		c.hasMore = false
		return nil
	}

	c.collector.IncGalleryFetchSuccess()
	c.mergeLocked(result, appendMode)
	return nil
}

// Remove deletes an item by ID, keeping order and reindexing.
// The server total is decremented, floored at zero.
func (c *Collection) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.index[id]
	if !ok {
		return false
	}

	c.items = append(c.items[:pos], c.items[pos+1:]...)
	delete(c.index, id)
	for i := pos; i < len(c.items); i++ {
		c.index[c.items[i].ID] = i
	}
	if c.total > 0 {
		c.total--
	}
	return true
}

// Reset clears all items and paging state.
func (c *Collection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.index = make(map[string]int)
	c.total = 0
	c.offset = 0
	c.hasMore = false
}

// AlignCursor moves the paging cursor to the end of the cached items.
// Used when a collection was filled outside the paging path (prefetch)
// and subsequent loads should continue from what is already held.
func (c *Collection) AlignCursor() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offset = len(c.items)
	c.hasMore = c.offset < c.total && len(c.items) > 0
}

// Items returns a copy of the cached items in order.
func (c *Collection) Items() []types.GalleryItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.GalleryItem, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the cached item with the given ID.
func (c *Collection) Get(id string) (types.GalleryItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.index[id]
	if !ok {
		return types.GalleryItem{}, false
	}
	return c.items[pos], true
}

// Len returns the number of cached items.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Total returns the server-reported total.
func (c *Collection) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// HasMore reports whether further pages exist.
func (c *Collection) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Limit returns the configured page size.
func (c *Collection) Limit() int {
	return c.limit
}
