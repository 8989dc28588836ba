// Package status implements the image lifecycle state machine. Every layer
// mutation path and every explicit review action funnels through the pure
// functions here; nothing else in the codebase writes image statuses
// directly, which keeps the derivation invariant intact everywhere.
package status

import (
	"fmt"

	"github.com/lewtec/maskbatch/internal/domain"
)

// Action is an explicit, user-driven status change request.
type Action string

const (
	ActionSkip      Action = "skip"
	ActionUnskip    Action = "unskip"
	ActionMarkReady Action = "mark_ready"
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
)

// Normalize maps legacy stored statuses onto the current six-value set.
// Unknown values fall back to unprocessed. Running it on an already
// normalized status is a no-op.
func Normalize(raw string) domain.ImageStatus {
	switch raw {
	case "in_progress_auto", "in_progress_manual":
		return domain.ImageInProgress
	case "completed":
		return domain.ImageApproved
	}
	if s := domain.ImageStatus(raw); s.Valid() {
		return s
	}
	return domain.ImageUnprocessed
}

// OnLayerMutation derives the status after any layer add/update/delete.
// Skip is sticky: it is never reverted by layer churn. For every other
// state a non-empty layer set means in_progress, an empty one unprocessed.
// This downgrades even approved or ready_for_review images back into active
// work; review workflows rely on re-review after any post-approval edit, so
// do not "fix" this.
func OnLayerMutation(current domain.ImageStatus, layerCount int) domain.ImageStatus {
	if current == domain.ImageSkip {
		return current
	}
	if layerCount > 0 {
		return domain.ImageInProgress
	}
	return domain.ImageUnprocessed
}

// Derive computes the layer-derived status ignoring any sticky override.
// Used when un-skipping restores "whatever the layer set implies".
func Derive(layerCount int) domain.ImageStatus {
	if layerCount > 0 {
		return domain.ImageInProgress
	}
	return domain.ImageUnprocessed
}

// Apply evaluates an explicit status action against the current state.
// layerCount is consulted only by unskip. Disallowed actions return
// domain.ErrInvalidTransition and leave the state unchanged.
func Apply(current domain.ImageStatus, action Action, layerCount int) (domain.ImageStatus, error) {
	switch action {
	case ActionSkip:
		// Unconditional override of the layer-derived state.
		return domain.ImageSkip, nil

	case ActionUnskip:
		if current != domain.ImageSkip {
			return current, fmt.Errorf("%w: unskip from %q", domain.ErrInvalidTransition, current)
		}
		return Derive(layerCount), nil

	case ActionMarkReady:
		if current != domain.ImageInProgress {
			return current, fmt.Errorf("%w: mark ready for review from %q", domain.ErrInvalidTransition, current)
		}
		return domain.ImageReadyForReview, nil

	case ActionApprove:
		if current != domain.ImageReadyForReview {
			return current, fmt.Errorf("%w: approve from %q", domain.ErrInvalidTransition, current)
		}
		return domain.ImageApproved, nil

	case ActionReject:
		if current != domain.ImageReadyForReview {
			return current, fmt.Errorf("%w: reject from %q", domain.ErrInvalidTransition, current)
		}
		return domain.ImageRejected, nil
	}
	return current, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, action)
}
