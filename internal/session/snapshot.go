package session

import "github.com/lewtec/maskbatch/internal/domain"

// Snapshot is a read-only copy of the session state for the canvas. The
// layers slice holds copies; mutating a snapshot never reaches the session,
// whose methods are the only mutation entry points.
type Snapshot struct {
	Image    *domain.Image
	Layers   []domain.Layer
	Creation *CreationSnapshot
	Edit     *EditSnapshot
}

// CreationSnapshot describes the pending creation sub-state.
type CreationSnapshot struct {
	Kind        domain.SourceKind
	Predictions int
	Label       string
	Selected    []int
}

// EditSnapshot describes the layer under edit and its working mask.
type EditSnapshot struct {
	LayerID string
	Mask    domain.BinaryMask
	Dirty   bool
	CanUndo bool
	CanRedo bool
}

// Snapshot captures the current session state. Returns a zero snapshot when
// no image is loaded.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap Snapshot
	if s.image != nil {
		img := *s.image
		snap.Image = &img
	}
	for _, l := range s.mirror {
		snap.Layers = append(snap.Layers, *l)
	}
	if s.creation != nil {
		snap.Creation = &CreationSnapshot{
			Kind:        s.creation.Kind,
			Predictions: len(s.creation.Predictions),
			Label:       s.creation.Label,
			Selected:    append([]int(nil), s.creation.Selected...),
		}
	}
	if s.edit != nil {
		current := s.edit.history.Current()
		snap.Edit = &EditSnapshot{
			LayerID: s.edit.layerID,
			Mask:    current.Clone(),
			Dirty:   !current.Equal(s.edit.original),
			CanUndo: s.edit.history.CanUndo(),
			CanRedo: s.edit.history.CanRedo(),
		}
	}
	return snap
}
