package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lewtec/maskbatch/internal/domain"
)

// queueMetadata applies a metadata change to the mirrored layer right away
// and schedules its persistence, merging with any write already pending for
// the same layer. Each call pushes the timer back, so a typing burst lands
// as a single store update.
func (s *Session) queueMetadata(layerID string, upd domain.LayerUpdate, apply func(*domain.Layer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	layer := s.findLayer(layerID)
	if layer == nil {
		return fmt.Errorf("layer %s: %w", layerID, domain.ErrNotFound)
	}
	apply(layer)

	merged := s.pending[layerID]
	if upd.Name != nil {
		merged.Name = upd.Name
	}
	if upd.ClassLabels != nil {
		merged.ClassLabels = upd.ClassLabels
	}
	if upd.DisplayColor != nil {
		merged.DisplayColor = upd.DisplayColor
	}
	s.pending[layerID] = merged

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.onDebounceFire)
	return nil
}

// onDebounceFire runs on the timer goroutine; failures are logged and the
// writes stay queued so the next flush retries them.
func (s *Session) onDebounceFire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushPendingLocked(context.Background()); err != nil {
		s.log.Warn().Err(err).Msg("debounced metadata save failed, will retry on next flush")
	}
}

// flushPendingLocked writes every queued metadata update synchronously. A
// layer deleted since queueing is dropped from the queue; any other failure
// keeps the update queued and aborts, so nothing is lost across retries.
func (s *Session) flushPendingLocked(ctx context.Context) error {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for layerID, upd := range s.pending {
		if upd.Empty() {
			delete(s.pending, layerID)
			continue
		}
		err := s.layers.Update(ctx, layerID, upd)
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			delete(s.pending, layerID)
			continue
		}
		return fmt.Errorf("while flushing metadata of %s: %w", layerID, err)
	}
	return nil
}
