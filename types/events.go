// Package types defines core domain types for the Imagine client engine.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"fmt"
)

// EventKind is the event discriminator carried in the stream envelope.
type EventKind string

// Event kinds emitted by the generation backend.
const (
	EventPrompt       EventKind = "prompt"
	EventImageVariant EventKind = "image_variant"
	EventError        EventKind = "error"
	EventSummary      EventKind = "summary"
	EventDone         EventKind = "done"
)

// IsTerminal returns true if this event kind ends the run.
func (k EventKind) IsTerminal() bool {
	return k == EventDone
}

// StreamEvent is the envelope for all stream records.
// The payload stays raw until a consumer asks for a typed view; unknown
// kinds survive decoding and are passed through untouched.
type StreamEvent struct {
	// Kind is the event discriminator.
	Kind EventKind `json:"event"`
	// Data is the kind-specific payload, left undecoded.
	Data json.RawMessage `json:"data,omitempty"`
}

// VariantPayload is the payload of an image_variant event.
type VariantPayload struct {
	// Index is the backend's 1-based position hint, absent when a later
	// event addresses an existing slot by identifier instead.
	Index *int `json:"index,omitempty"`
	// ID is the backend-assigned identifier for the image set.
	ID string `json:"id,omitempty"`
	// ImageID is an alternate identifier field some backends emit.
	ImageID string `json:"image_id,omitempty"`
	// Variant is the enhancement-level tag for the carried image.
	Variant string `json:"variant,omitempty"`
	// Image is the rendered artifact, absent for metadata-only events.
	Image *ImageItem `json:"image,omitempty"`
	// Rationale, when present, replaces the set's rationale.
	Rationale *string `json:"rationale,omitempty"`
	// Combo is the design selection that produced the set.
	Combo *Combo `json:"combo,omitempty"`
}

// DonePayload is the optional summary carried by a done event.
// It seeds the follow-up related-results query for the finished run.
type DonePayload struct {
	ID    string `json:"id,omitempty"`
	Theme string `json:"theme,omitempty"`
	Combo *Combo `json:"combo,omitempty"`
	Type  string `json:"type,omitempty"`
}

// errorPayload matches the object form of an error event payload.
type errorPayload struct {
	Message string `json:"message"`
}

// Prompt returns the prompt text for a prompt event.
func (e *StreamEvent) Prompt() (string, error) {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("prompt payload: %w", err)
	}
	return s, nil
}

// Variant decodes the payload of an image_variant event.
func (e *StreamEvent) Variant() (*VariantPayload, error) {
	var p VariantPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("image_variant payload: %w", err)
	}
	return &p, nil
}

// ErrorMessage extracts the human-readable message from an error event.
// The backend emits both `{"message": "..."}` objects and bare strings;
// both forms are accepted. Undecodable payloads fall back to a fixed string.
func (e *StreamEvent) ErrorMessage() string {
	var obj errorPayload
	if err := json.Unmarshal(e.Data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil && s != "" {
		return s
	}
	return "generation error"
}

// Done decodes the payload of a done event.
// A done event with no payload (or an undecodable one) is still a valid
// terminal; it just carries no follow-up query.
func (e *StreamEvent) Done() *DonePayload {
	if len(e.Data) == 0 {
		return nil
	}
	var p DonePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil
	}
	return &p
}

// GenerateRequest is the payload sent to start a generation run.
// Field names match the backend contract; ExtraDetail uses the camelCase
// alias the backend accepts.
type GenerateRequest struct {
	Theme       string              `json:"theme"`
	Enhancement string              `json:"enhancement"`
	ExtraDetail string              `json:"extraDetail,omitempty"`
	Selections  map[string]string   `json:"selections"`
	Catalog     map[string][]string `json:"catalog,omitempty"`
}
