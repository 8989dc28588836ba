package domain

import (
	"time"
)

// LayerStatus is the provenance/confidence stage of one mask layer,
// independent of the owning image's status.
type LayerStatus string

const (
	LayerPrediction LayerStatus = "prediction"
	LayerEdited     LayerStatus = "edited"
	LayerApproved   LayerStatus = "approved"
	LayerRejected   LayerStatus = "rejected"
)

// SourceKind tags the provenance of a layer's mask.
type SourceKind string

const (
	SourceAutomask          SourceKind = "automask"
	SourceInteractivePrompt SourceKind = "interactive_prompt"
	SourceManual            SourceKind = "manual"
)

// PromptPoint is a single click prompt. Label 1 marks foreground, 0
// background, following the segmentation model's convention.
type PromptPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label int     `json:"label"`
}

// AutomaskSource records the parameters of an unprompted generation run
// and the model's confidence for the kept mask.
type AutomaskSource struct {
	Model  string             `json:"model,omitempty"`
	Params map[string]float64 `json:"params,omitempty"`
	Score  *float64           `json:"score,omitempty"`
}

// PromptSource records the inputs of an interactive prediction and the
// model's confidence for the kept mask.
type PromptSource struct {
	Model    string        `json:"model,omitempty"`
	Points   []PromptPoint `json:"points,omitempty"`
	Boxes    []Box         `json:"boxes,omitempty"`
	MaskHint *CompactMask  `json:"mask_hint,omitempty"`
	Score    *float64      `json:"score,omitempty"`
}

// SourceMetadata is a tagged record describing where a layer's mask came
// from. Exactly one of the kind-specific fields is set, matching Kind;
// manual layers carry the tag alone. It serializes to a flexible JSON shape
// so new kinds can be added without a schema change.
type SourceMetadata struct {
	Kind     SourceKind      `json:"type"`
	Automask *AutomaskSource `json:"automask,omitempty"`
	Prompt   *PromptSource   `json:"prompt,omitempty"`
}

// Layer is one named, labeled mask region persisted for an image. Exactly
// one mask per layer; legacy rows holding several masks are split on
// migration.
type Layer struct {
	LayerID      string
	ImageHash    string
	Name         string
	ClassLabels  []string
	Status       LayerStatus
	Mask         CompactMask
	DisplayColor string
	Source       SourceMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LayerUpdate is a partial update for a layer. Nil fields are left
// untouched; updated_at always refreshes.
type LayerUpdate struct {
	Name         *string
	ClassLabels  *[]string
	Status       *LayerStatus
	Mask         *CompactMask
	DisplayColor *string
}

// Empty reports whether the update would change nothing.
func (u LayerUpdate) Empty() bool {
	return u.Name == nil && u.ClassLabels == nil && u.Status == nil &&
		u.Mask == nil && u.DisplayColor == nil
}
