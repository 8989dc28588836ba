// Package session holds the in-memory working state for the one image
// currently open for annotation. The session mirrors the image's persisted
// layers, buffers ephemeral creation output and manual edits, and
// synchronizes with the layer store on a defined save protocol: discrete
// actions persist synchronously, high-frequency metadata tweaks are
// debounced, and un-committed creation output is never persisted at all.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lewtec/maskbatch/internal/domain"
	"github.com/lewtec/maskbatch/internal/maskcodec"
	"github.com/lewtec/maskbatch/internal/maskops"
	"github.com/lewtec/maskbatch/internal/status"
)

// DefaultDebounce is how long metadata saves wait for further keystrokes
// before hitting the store.
const DefaultDebounce = 750 * time.Millisecond

// Prediction is one model-produced mask candidate held in the creation
// sub-state before the user decides to keep it.
type Prediction struct {
	Mask  domain.BinaryMask
	Score *float64
}

// Creation is the ephemeral sub-state holding the latest unsaved model
// output together with the inputs that produced it. It is replaced wholesale
// by each new generation run and dropped, never persisted, on flush.
type Creation struct {
	Kind        domain.SourceKind
	Predictions []Prediction
	Label       string
	Automask    *domain.AutomaskSource
	Prompt      *domain.PromptSource
	Selected    []int
}

// editState tracks the single layer under manual edit: the original mask
// for discard, and the undo history whose current entry is the working mask.
type editState struct {
	layerID  string
	original domain.BinaryMask
	history  *History
}

// Session is the working state for one open image. All methods are safe for
// concurrent use; a mutex serializes them because the debounced autosave
// timer fires on its own goroutine.
type Session struct {
	images   domain.ImageStore
	layers   domain.LayerStore
	log      zerolog.Logger
	debounce time.Duration

	mu       sync.Mutex
	image    *domain.Image
	mirror   []*domain.Layer
	creation *Creation
	edit     *editState
	pending  map[string]domain.LayerUpdate
	timer    *time.Timer
}

// New creates an empty session backed by the given stores. Nothing is
// loaded until Load is called.
func New(images domain.ImageStore, layers domain.LayerStore, log zerolog.Logger, debounce time.Duration) *Session {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Session{
		images:   images,
		layers:   layers,
		log:      log.With().Str("component", "session").Logger(),
		debounce: debounce,
		pending:  make(map[string]domain.LayerUpdate),
	}
}

// Load switches the session to the given image. Any active edit on the
// previous image is saved first (manual edits are never silently dropped)
// and pending metadata writes are flushed; un-committed creation output is
// discarded. The new session starts in viewing mode: layers mirrored, no
// layer under edit, creation empty.
func (s *Session) Load(ctx context.Context, imageHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return fmt.Errorf("while flushing before load: %w", err)
	}

	img, err := s.images.Get(ctx, imageHash)
	if err != nil {
		return fmt.Errorf("while loading image %s: %w", imageHash, err)
	}
	layers, err := s.layers.ListForImage(ctx, imageHash)
	if err != nil {
		return fmt.Errorf("while loading layers of %s: %w", imageHash, err)
	}

	s.image = img
	s.mirror = layers
	s.creation = nil
	s.edit = nil
	s.log.Debug().Str("image", imageHash).Int("layers", len(layers)).Msg("session loaded")
	return nil
}

// RecordCreationOutput replaces the creation sub-state with the newest model
// output. Persisted layers are not touched; an aborted generation therefore
// leaves the previous creation state exactly as it was.
func (s *Session) RecordCreationOutput(c Creation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creation = &c
}

// SelectPredictions records which creation outputs the canvas currently
// displays. Indexes out of range are ignored.
func (s *Session) SelectPredictions(indices []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creation == nil {
		return
	}
	var sel []int
	for _, i := range indices {
		if i >= 0 && i < len(s.creation.Predictions) {
			sel = append(sel, i)
		}
	}
	s.creation.Selected = sel
}

// CommitCreationToLayers persists the selected predictions as new layers,
// each with a generated unique name, a random display color and source
// metadata recording the generation kind. On success the creation sub-state
// clears and the image status recomputes. On any store failure the session's
// in-memory state is left untouched and already-created layers from this
// call are rolled back, so the caller can retry the whole commit.
func (s *Session) CommitCreationToLayers(ctx context.Context, selected []int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		return nil, fmt.Errorf("commit creation: %w", domain.ErrNotFound)
	}
	if s.creation == nil || len(s.creation.Predictions) == 0 {
		return nil, nil
	}

	// Encode everything up front so a codec failure happens before any row
	// is written.
	type candidate struct {
		mask  domain.CompactMask
		score *float64
	}
	var candidates []candidate
	for _, i := range selected {
		if i < 0 || i >= len(s.creation.Predictions) {
			continue
		}
		p := s.creation.Predictions[i]
		compact, err := maskcodec.Encode(p.Mask)
		if err != nil {
			return nil, fmt.Errorf("while encoding prediction %d: %w", i, err)
		}
		candidates = append(candidates, candidate{mask: compact, score: p.Score})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	source := domain.SourceMetadata{Kind: s.creation.Kind}
	switch s.creation.Kind {
	case domain.SourceAutomask:
		source.Automask = s.creation.Automask
	case domain.SourceInteractivePrompt:
		source.Prompt = s.creation.Prompt
	}
	var labels []string
	if s.creation.Label != "" {
		labels = []string{s.creation.Label}
	}

	var created []*domain.Layer
	rollback := func() {
		for _, l := range created {
			if err := s.layers.Delete(ctx, l.LayerID); err != nil {
				s.log.Warn().Err(err).Str("layer", l.LayerID).Msg("rollback of partial commit failed")
			}
		}
	}

	n := len(s.mirror)
	for _, c := range candidates {
		layer := &domain.Layer{
			ImageHash:    s.image.ImageHash,
			ClassLabels:  labels,
			Status:       domain.LayerPrediction,
			Mask:         c.mask,
			DisplayColor: randomColor(),
			Source:       source,
		}
		if c.score != nil {
			sc := *c.score
			switch source.Kind {
			case domain.SourceAutomask:
				am := domain.AutomaskSource{}
				if s.creation.Automask != nil {
					am = *s.creation.Automask
				}
				am.Score = &sc
				layer.Source.Automask = &am
			case domain.SourceInteractivePrompt:
				pr := domain.PromptSource{}
				if s.creation.Prompt != nil {
					pr = *s.creation.Prompt
				}
				pr.Score = &sc
				layer.Source.Prompt = &pr
			}
		}

		// The store rejects duplicate names; bump the counter and retry
		// until one sticks.
		for {
			n++
			layer.Name = generatedName(s.creation.Label, n)
			saved, err := s.layers.Create(ctx, layer)
			if err == nil {
				created = append(created, saved)
				break
			}
			if isDuplicateName(err) {
				continue
			}
			rollback()
			return nil, fmt.Errorf("while committing creation output: %w", err)
		}
	}

	if err := s.syncImageStatusLocked(ctx, len(s.mirror)+len(created)); err != nil {
		rollback()
		return nil, err
	}

	// New layers go to the top, newest first.
	ids := make([]string, 0, len(created))
	for i := len(created) - 1; i >= 0; i-- {
		s.mirror = append([]*domain.Layer{created[i]}, s.mirror...)
	}
	for _, l := range created {
		ids = append(ids, l.LayerID)
	}
	s.creation = nil
	s.log.Info().Str("image", s.image.ImageHash).Int("created", len(ids)).Msg("creation output committed")
	return ids, nil
}

// AddEmptyLayer creates a manual layer with an all-background mask sized to
// the image, for annotating from scratch.
func (s *Session) AddEmptyLayer(ctx context.Context, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		return "", fmt.Errorf("add empty layer: %w", domain.ErrNotFound)
	}
	blank, err := maskcodec.Encode(domain.NewBinaryMask(s.image.Width, s.image.Height))
	if err != nil {
		return "", fmt.Errorf("while encoding blank mask: %w", err)
	}
	var labels []string
	if label != "" {
		labels = []string{label}
	}

	layer := &domain.Layer{
		ImageHash:    s.image.ImageHash,
		ClassLabels:  labels,
		Status:       domain.LayerEdited,
		Mask:         blank,
		DisplayColor: randomColor(),
		Source:       domain.SourceMetadata{Kind: domain.SourceManual},
	}
	n := len(s.mirror)
	var saved *domain.Layer
	for {
		n++
		layer.Name = generatedName(label, n)
		saved, err = s.layers.Create(ctx, layer)
		if err == nil {
			break
		}
		if isDuplicateName(err) {
			continue
		}
		return "", fmt.Errorf("while adding empty layer: %w", err)
	}

	if err := s.syncImageStatusLocked(ctx, len(s.mirror)+1); err != nil {
		if derr := s.layers.Delete(ctx, saved.LayerID); derr != nil {
			s.log.Warn().Err(derr).Str("layer", saved.LayerID).Msg("rollback of empty layer failed")
		}
		return "", err
	}
	s.mirror = append([]*domain.Layer{saved}, s.mirror...)
	return saved.LayerID, nil
}

// EnterEdit begins manual editing of a layer. If another layer is under
// edit with unsaved changes it is saved first, never dropped. The target's
// current mask becomes both the discard snapshot and the single seed entry
// of the undo history. A mask that fails to decode starts the edit from an
// all-background canvas instead of aborting.
func (s *Session) EnterEdit(ctx context.Context, layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveEditLocked(ctx); err != nil {
		return fmt.Errorf("while auto-saving previous edit: %w", err)
	}

	layer := s.findLayer(layerID)
	if layer == nil {
		return fmt.Errorf("layer %s: %w", layerID, domain.ErrNotFound)
	}

	mask, err := maskcodec.Decode(layer.Mask)
	if err != nil {
		s.log.Warn().Err(err).Str("layer", layerID).Msg("stored mask is corrupt, editing from blank")
		mask = domain.BinaryMask{}
	}
	if mask.Width == 0 && s.image != nil {
		mask = domain.NewBinaryMask(s.image.Width, s.image.Height)
	}

	s.edit = &editState{
		layerID:  layerID,
		original: mask,
		history:  NewHistory(mask),
	}
	return nil
}

// ApplyEdit runs one mask operation against the working mask and records
// the result in the undo history, truncating any redo tail.
func (s *Session) ApplyEdit(op maskops.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.edit == nil {
		return fmt.Errorf("no layer under edit: %w", domain.ErrInvalidTransition)
	}
	s.edit.history.Push(op(s.edit.history.Current()))
	return nil
}

// UndoEdit steps the working mask back one operation. At the oldest state
// it does nothing and reports false.
func (s *Session) UndoEdit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edit != nil && s.edit.history.Undo()
}

// RedoEdit steps the working mask forward one operation. At the newest
// state it does nothing and reports false.
func (s *Session) RedoEdit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edit != nil && s.edit.history.Redo()
}

// SaveEdit persists the working mask and exits edit mode. The layer's own
// status advances to edited unless it already carries a review verdict;
// the image status still recomputes, knocking even an approved image back
// into work. Calling it with no active edit is a no-op. On store failure
// the edit stays active and in-memory state is unchanged.
func (s *Session) SaveEdit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveEditLocked(ctx)
}

// DiscardEdit exits edit mode without touching the store; the layer keeps
// the mask it had when the edit began.
func (s *Session) DiscardEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edit = nil
}

// DeleteLayer removes a layer immediately and recomputes the image status.
// Deleting the layer under edit also abandons the edit.
func (s *Session) DeleteLayer(ctx context.Context, layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLayer(layerID) == nil {
		return fmt.Errorf("layer %s: %w", layerID, domain.ErrNotFound)
	}
	delete(s.pending, layerID)
	if err := s.layers.Delete(ctx, layerID); err != nil {
		return fmt.Errorf("while deleting layer %s: %w", layerID, err)
	}
	if err := s.syncImageStatusLocked(ctx, len(s.mirror)-1); err != nil {
		s.log.Warn().Err(err).Str("image", s.image.ImageHash).Msg("status recompute after delete failed")
	}
	for i, l := range s.mirror {
		if l.LayerID == layerID {
			s.mirror = append(s.mirror[:i], s.mirror[i+1:]...)
			break
		}
	}
	if s.edit != nil && s.edit.layerID == layerID {
		s.edit = nil
	}
	return nil
}

// Rename changes a layer's display name. The change applies to the mirror
// immediately and persists on the debounce timer, collapsing
// rename-while-typing bursts into one write.
func (s *Session) Rename(layerID, name string) error {
	return s.queueMetadata(layerID, domain.LayerUpdate{Name: &name}, func(l *domain.Layer) {
		l.Name = name
	})
}

// Relabel replaces a layer's class labels, debounced like Rename.
func (s *Session) Relabel(layerID string, labels []string) error {
	return s.queueMetadata(layerID, domain.LayerUpdate{ClassLabels: &labels}, func(l *domain.Layer) {
		l.ClassLabels = labels
	})
}

// Recolor changes a layer's display color, debounced like Rename.
func (s *Session) Recolor(layerID, color string) error {
	return s.queueMetadata(layerID, domain.LayerUpdate{DisplayColor: &color}, func(l *domain.Layer) {
		l.DisplayColor = color
	})
}

// ApplyStatusAction performs an explicit review action (skip, unskip, mark
// ready, approve, reject) on the loaded image, persisting synchronously.
func (s *Session) ApplyStatusAction(ctx context.Context, action status.Action) (domain.ImageStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		return "", fmt.Errorf("status action: %w", domain.ErrNotFound)
	}
	next, err := status.Apply(s.image.Status, action, len(s.mirror))
	if err != nil {
		return s.image.Status, err
	}
	if next != s.image.Status {
		if err := s.images.SetStatus(ctx, s.image.ImageHash, next); err != nil {
			return s.image.Status, fmt.Errorf("while persisting status %s: %w", next, err)
		}
		s.image.Status = next
	}
	return next, nil
}

// Flush persists everything durable and drops everything ephemeral: an
// active edit is saved as if SaveEdit were called, pending metadata writes
// go to the store now, and un-committed creation output is discarded.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Session) flushLocked(ctx context.Context) error {
	if err := s.flushPendingLocked(ctx); err != nil {
		return err
	}
	if err := s.saveEditLocked(ctx); err != nil {
		return err
	}
	s.creation = nil
	return nil
}

func (s *Session) saveEditLocked(ctx context.Context) error {
	if s.edit == nil {
		return nil
	}
	layer := s.findLayer(s.edit.layerID)
	if layer == nil {
		// Deleted out from under the edit; nothing to save.
		s.edit = nil
		return nil
	}

	working := s.edit.history.Current()
	compact, err := maskcodec.Encode(working)
	if err != nil {
		return fmt.Errorf("while encoding edited mask: %w", err)
	}

	upd := domain.LayerUpdate{Mask: &compact}
	newStatus := layer.Status
	if layer.Status != domain.LayerApproved && layer.Status != domain.LayerRejected {
		newStatus = domain.LayerEdited
		upd.Status = &newStatus
	}
	if err := s.layers.Update(ctx, layer.LayerID, upd); err != nil {
		return fmt.Errorf("while saving edit of %s: %w", layer.LayerID, err)
	}
	if err := s.syncImageStatusLocked(ctx, len(s.mirror)); err != nil {
		s.log.Warn().Err(err).Str("image", layer.ImageHash).Msg("status recompute after edit failed")
	}

	layer.Mask = compact
	layer.Status = newStatus
	s.edit = nil
	return nil
}

// syncImageStatusLocked applies the layer-mutation rule to the loaded image
// and persists the result when it changed.
func (s *Session) syncImageStatusLocked(ctx context.Context, layerCount int) error {
	if s.image == nil {
		return nil
	}
	next := status.OnLayerMutation(s.image.Status, layerCount)
	if next == s.image.Status {
		return nil
	}
	if err := s.images.SetStatus(ctx, s.image.ImageHash, next); err != nil {
		return fmt.Errorf("while syncing image status to %s: %w", next, err)
	}
	s.image.Status = next
	return nil
}

func (s *Session) findLayer(layerID string) *domain.Layer {
	for _, l := range s.mirror {
		if l.LayerID == layerID {
			return l
		}
	}
	return nil
}

// generatedName builds the auto-assigned layer name: "Mask {n}", or
// "{label} {n}" when a label is already known.
func generatedName(label string, n int) string {
	if label == "" {
		label = "Mask"
	}
	return fmt.Sprintf("%s %d", label, n)
}

func isDuplicateName(err error) bool {
	return errors.Is(err, domain.ErrDuplicateName)
}

func randomColor() string {
	// Bias toward saturated mid-bright colors so overlays stay visible on
	// both light and dark imagery.
	r := 64 + rand.IntN(192)
	g := 64 + rand.IntN(192)
	b := 64 + rand.IntN(192)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
