package domain

import "context"

// ImageStore defines storage operations for the image pool.
type ImageStore interface {
	// Upsert registers an image by hash, keeping the existing status when
	// the hash is already known.
	Upsert(ctx context.Context, img *Image) error

	// Get retrieves an image by hash. Returns ErrNotFound if absent.
	Get(ctx context.Context, imageHash string) (*Image, error)

	// SetStatus updates the lifecycle status of an image.
	SetStatus(ctx context.Context, imageHash string, status ImageStatus) error

	// List retrieves all images, newest first.
	List(ctx context.Context) ([]*Image, error)

	// HashesByStatuses returns hashes of images whose status is in the
	// given set, sorted by hash for deterministic iteration. An empty set
	// selects every image.
	HashesByStatuses(ctx context.Context, statuses []ImageStatus) ([]string, error)

	// Delete removes an image and, by cascade, all of its layers.
	Delete(ctx context.Context, imageHash string) error

	// Count returns the total number of images.
	Count(ctx context.Context) (int64, error)
}

// LayerStore defines storage operations for mask layers. All operations are
// scoped to a single image except the batch query used by export.
type LayerStore interface {
	// Create persists a new layer, assigning LayerID and timestamps.
	// Fails with ErrDuplicateName if the name is taken for that image.
	Create(ctx context.Context, layer *Layer) (*Layer, error)

	// Get retrieves a layer by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, layerID string) (*Layer, error)

	// Update applies a partial update. Returns ErrNotFound for unknown ids.
	Update(ctx context.Context, layerID string, upd LayerUpdate) error

	// Delete removes a layer. Deleting a nonexistent id is ErrNotFound so
	// callers can tell "already gone" races from normal flow.
	Delete(ctx context.Context, layerID string) error

	// ListForImage returns the image's layers newest first, optionally
	// restricted to the given statuses.
	ListForImage(ctx context.Context, imageHash string, statuses ...LayerStatus) ([]*Layer, error)

	// ByStatuses batch-fetches layers for many images in one query,
	// restricted to the given layer statuses (empty set = all).
	ByStatuses(ctx context.Context, imageHashes []string, statuses []LayerStatus) (map[string][]*Layer, error)

	// CountForImage returns the number of layers for the image.
	CountForImage(ctx context.Context, imageHash string) (int, error)
}
