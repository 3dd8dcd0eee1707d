package types

// GalleryItem is an ImageSet-like record returned by the paged gallery
// endpoints. The identifier is always present and stable; it is the
// deduplication key for client-side collections.
type GalleryItem struct {
	ID       string              `json:"id"`
	Type     string              `json:"type,omitempty"`
	Theme    string              `json:"theme,omitempty"`
	Name     []string            `json:"name,omitempty"`
	Variants map[Level]ImageItem `json:"variants,omitempty"`
	Combo    Combo               `json:"combo,omitempty"`
}

// Page is one server page of gallery items.
// HasMore is nil when the server omits it; callers derive it from the
// cursor and Total in that case.
type Page struct {
	Items      []GalleryItem `json:"items"`
	Total      int           `json:"total"`
	HasMore    *bool         `json:"has_more,omitempty"`
	NextOffset int           `json:"next_offset,omitempty"`
}

// EmptyPage is a zero-result page: total 0, no further pages.
func EmptyPage() Page {
	noMore := false
	return Page{Items: nil, Total: 0, HasMore: &noMore}
}

// RelatedQuery is the request body for the related-images endpoint.
type RelatedQuery struct {
	ID         string            `json:"id"`
	Theme      string            `json:"theme"`
	Type       string            `json:"type"`
	Selections map[string]string `json:"selections"`
}

// RelatedQueryFor builds the related query for a focused image set.
func RelatedQueryFor(set *ImageSet) RelatedQuery {
	return RelatedQuery{
		ID:         set.ID,
		Theme:      set.Theme,
		Type:       set.Type,
		Selections: set.Combo.Selections(),
	}
}

// Key returns the composite key that identifies which results this query
// is about: theme plus the design attribute selections. A key change means
// the related collection is showing stale results and must restart paging.
func (q RelatedQuery) Key() string {
	c := Combo{
		ColorPalette: q.Selections["color_palette"],
		Pattern:      q.Selections["pattern"],
		Motif:        q.Selections["motif"],
		Style:        q.Selections["style"],
		Finish:       q.Selections["finish"],
	}
	return q.Theme + "::" + c.Key()
}
