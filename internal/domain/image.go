package domain

import (
	"time"
)

// ImageStatus is the annotation lifecycle stage of an image.
type ImageStatus string

const (
	ImageUnprocessed    ImageStatus = "unprocessed"
	ImageInProgress     ImageStatus = "in_progress"
	ImageReadyForReview ImageStatus = "ready_for_review"
	ImageApproved       ImageStatus = "approved"
	ImageRejected       ImageStatus = "rejected"
	ImageSkip           ImageStatus = "skip"
)

// Valid reports whether s is one of the six current lifecycle statuses.
func (s ImageStatus) Valid() bool {
	switch s {
	case ImageUnprocessed, ImageInProgress, ImageReadyForReview,
		ImageApproved, ImageRejected, ImageSkip:
		return true
	}
	return false
}

// Image represents one source picture in the annotation pool. The hash is
// content-derived, unique and immutable; pixel bytes live with the image
// source collaborator, not here.
type Image struct {
	ImageHash string
	Width     int
	Height    int
	Status    ImageStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
