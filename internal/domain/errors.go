package domain

import "errors"

// Error taxonomy for the annotation core. Callers are expected to test with
// errors.Is; concrete messages carry the operation context.
var (
	// ErrInvalidMask means the caller supplied a non-binary or
	// dimension-mismatched mask to the codec. Caller bug, not retryable.
	ErrInvalidMask = errors.New("invalid mask")

	// ErrCorruptMask means stored mask data failed its self-consistency
	// check. Recoverable by skipping the affected layer.
	ErrCorruptMask = errors.New("corrupt mask data")

	// ErrDuplicateName means a layer name already exists for the image.
	ErrDuplicateName = errors.New("duplicate layer name")

	// ErrNotFound means the referenced image or layer does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence means a store operation failed for transport or
	// storage reasons. Retryable; in-memory session state is preserved.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidTransition means an explicit status action was requested
	// from a state that does not permit it. No state change happens.
	ErrInvalidTransition = errors.New("invalid status transition")
)
