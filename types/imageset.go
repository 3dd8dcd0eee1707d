package types

import (
	"fmt"
	"strings"
)

// Level is an enhancement-level tag for a rendered variant.
type Level string

// Enhancement levels in the fixed variant set.
const (
	LevelOriginal Level = "original"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelEdited   Level = "edited"
)

// ParseLevel validates an enhancement-level tag.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case LevelOriginal, LevelLow, LevelMedium, LevelHigh, LevelEdited:
		return Level(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown enhancement level: %q", s)
	}
}

// ImageItem is one rendered artifact: an image payload plus MIME metadata.
// Immutable once created; a set swaps whole items, never patches one.
type ImageItem struct {
	MimeType string `json:"mime_type"`
	DataB64  string `json:"data_b64"`
}

// comboAttrKeys is the canonical attribute order for combo keys and labels.
var comboAttrKeys = []string{"color_palette", "pattern", "motif", "style", "finish"}

// Combo describes the design attribute selections that produced a set.
type Combo struct {
	ColorPalette string `json:"color_palette,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	Motif        string `json:"motif,omitempty"`
	Style        string `json:"style,omitempty"`
	Finish       string `json:"finish,omitempty"`
	Rationale    string `json:"rationale,omitempty"`
}

// attr returns the attribute value for a canonical key.
func (c Combo) attr(key string) string {
	switch key {
	case "color_palette":
		return c.ColorPalette
	case "pattern":
		return c.Pattern
	case "motif":
		return c.Motif
	case "style":
		return c.Style
	case "finish":
		return c.Finish
	default:
		return ""
	}
}

// Key returns a canonical composite string over the five design attributes.
// Rationale is excluded: two combos with the same selections are the same
// design regardless of how the backend explained them.
func (c Combo) Key() string {
	parts := make([]string, 0, len(comboAttrKeys))
	for _, k := range comboAttrKeys {
		parts = append(parts, strings.ToLower(strings.TrimSpace(c.attr(k))))
	}
	return strings.Join(parts, "|")
}

// Selections returns the non-default attribute values keyed by attribute name.
// Used to build related-results query bodies.
func (c Combo) Selections() map[string]string {
	out := make(map[string]string)
	for _, k := range comboAttrKeys {
		v := strings.TrimSpace(c.attr(k))
		if v != "" && !strings.EqualFold(v, "default") {
			out[k] = v
		}
	}
	return out
}

// ImageSet is one generation candidate: a variant map plus the design
// metadata that produced it. Within a run the slot index uniquely
// identifies a set; the backend ID may be backfilled later.
type ImageSet struct {
	// ID is the backend-assigned identifier, empty until backfilled.
	ID string `json:"id,omitempty"`
	// Slot is the 0-based position within the run's ordered collection.
	Slot int `json:"slot"`
	// Variants maps enhancement levels to rendered artifacts.
	Variants map[Level]ImageItem `json:"variants"`
	// Rationale is the backend's one-line explanation for the design.
	Rationale string `json:"rationale,omitempty"`
	// Combo is the design selection that produced this set.
	Combo Combo `json:"combo"`
	// Theme is the run's theme label.
	Theme string `json:"theme,omitempty"`
	// Type is the run's result-type label (e.g. napkin, cup, plate).
	Type string `json:"type,omitempty"`
}

// NewImageSet creates an empty set at the given slot seeded with the
// provided combo and run context.
func NewImageSet(slot int, combo Combo, theme, resultType string) *ImageSet {
	return &ImageSet{
		Slot:     slot,
		Variants: make(map[Level]ImageItem),
		Combo:    combo,
		Theme:    theme,
		Type:     resultType,
	}
}

// Edited reports whether an edited variant has been applied to this set.
func (s *ImageSet) Edited() bool {
	_, ok := s.Variants[LevelEdited]
	return ok
}

// Variant returns the variant at the given level, falling back to the
// original when the requested level is absent.
func (s *ImageSet) Variant(level Level) (ImageItem, bool) {
	if item, ok := s.Variants[level]; ok {
		return item, true
	}
	item, ok := s.Variants[LevelOriginal]
	return item, ok
}

// Clone returns a deep copy. Used when a finished run's sets are handed
// off to application state so the run's own collection stays isolated.
func (s *ImageSet) Clone() *ImageSet {
	out := *s
	out.Variants = make(map[Level]ImageItem, len(s.Variants))
	for k, v := range s.Variants {
		out.Variants[k] = v
	}
	return &out
}

// CloneSets deep-copies an ordered collection of sets.
func CloneSets(sets []*ImageSet) []*ImageSet {
	out := make([]*ImageSet, len(sets))
	for i, s := range sets {
		out[i] = s.Clone()
	}
	return out
}
