package maskbatch

import (
	"time"

	"github.com/lewtec/maskbatch/internal/domain"
	"github.com/lewtec/maskbatch/internal/maskcodec"
	"github.com/lewtec/maskbatch/internal/session"
)

// apiImage is the wire form of an image record.
type apiImage struct {
	ImageHash string    `json:"image_hash"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAPIImage(img *domain.Image) apiImage {
	return apiImage{
		ImageHash: img.ImageHash,
		Width:     img.Width,
		Height:    img.Height,
		Status:    string(img.Status),
		CreatedAt: img.CreatedAt,
		UpdatedAt: img.UpdatedAt,
	}
}

// apiLayer is the wire form of a mask layer.
type apiLayer struct {
	LayerID      string                `json:"layer_id"`
	Name         string                `json:"name"`
	ClassLabels  []string              `json:"class_labels"`
	Status       string                `json:"status"`
	Mask         domain.CompactMask    `json:"mask"`
	DisplayColor string                `json:"display_color,omitempty"`
	Source       domain.SourceMetadata `json:"source_metadata"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// apiSnapshot is the session state as the canvas sees it.
type apiSnapshot struct {
	Image    *apiImage    `json:"image,omitempty"`
	Layers   []apiLayer   `json:"layers"`
	Creation *apiCreation `json:"creation,omitempty"`
	Edit     *apiEdit     `json:"edit,omitempty"`
}

type apiCreation struct {
	Kind        string `json:"kind"`
	Predictions int    `json:"predictions"`
	Label       string `json:"label,omitempty"`
	Selected    []int  `json:"selected,omitempty"`
}

type apiEdit struct {
	LayerID string             `json:"layer_id"`
	Mask    domain.CompactMask `json:"mask"`
	Dirty   bool               `json:"dirty"`
	CanUndo bool               `json:"can_undo"`
	CanRedo bool               `json:"can_redo"`
}

func toAPISnapshot(snap session.Snapshot) apiSnapshot {
	out := apiSnapshot{Layers: []apiLayer{}}
	if snap.Image != nil {
		img := toAPIImage(snap.Image)
		out.Image = &img
	}
	for _, l := range snap.Layers {
		out.Layers = append(out.Layers, apiLayer{
			LayerID:      l.LayerID,
			Name:         l.Name,
			ClassLabels:  l.ClassLabels,
			Status:       string(l.Status),
			Mask:         l.Mask,
			DisplayColor: l.DisplayColor,
			Source:       l.Source,
			UpdatedAt:    l.UpdatedAt,
		})
	}
	if snap.Creation != nil {
		out.Creation = &apiCreation{
			Kind:        string(snap.Creation.Kind),
			Predictions: snap.Creation.Predictions,
			Label:       snap.Creation.Label,
			Selected:    snap.Creation.Selected,
		}
	}
	if snap.Edit != nil {
		// The working mask is held dense in memory; encode for the wire.
		// The mask came from the codec in the first place, so this cannot
		// fail on binary content.
		compact, _ := maskcodec.Encode(snap.Edit.Mask)
		out.Edit = &apiEdit{
			LayerID: snap.Edit.LayerID,
			Mask:    compact,
			Dirty:   snap.Edit.Dirty,
			CanUndo: snap.Edit.CanUndo,
			CanRedo: snap.Edit.CanRedo,
		}
	}
	return out
}
