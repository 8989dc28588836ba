package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lewtec/maskbatch/internal/domain"
	"github.com/lewtec/maskbatch/internal/status"
)

// ImageRepository implements domain.ImageStore on SQLite.
type ImageRepository struct {
	db *sql.DB
}

// NewImageRepository creates a new ImageRepository.
func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Upsert registers an image by hash. Dimensions are refreshed on conflict
// but the lifecycle status of a known image is left alone.
func (r *ImageRepository) Upsert(ctx context.Context, img *domain.Image) error {
	now := time.Now().UTC()
	st := img.Status
	if !st.Valid() {
		st = domain.ImageUnprocessed
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO images (image_hash, width, height, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(image_hash) DO UPDATE SET
    width = excluded.width,
    height = excluded.height,
    updated_at = excluded.updated_at
`, img.ImageHash, img.Width, img.Height, string(st), formatTime(now), formatTime(now))
	if err != nil {
		return persistence("upserting image "+img.ImageHash, err)
	}
	return nil
}

// Get retrieves an image by hash. Legacy stored statuses are normalized on
// read.
func (r *ImageRepository) Get(ctx context.Context, imageHash string) (*domain.Image, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT image_hash, width, height, status, created_at, updated_at
FROM images WHERE image_hash = ?
`, imageHash)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %s: %w", imageHash, domain.ErrNotFound)
	}
	if err != nil {
		return nil, persistence("fetching image "+imageHash, err)
	}
	return img, nil
}

// SetStatus updates the lifecycle status of an image.
func (r *ImageRepository) SetStatus(ctx context.Context, imageHash string, st domain.ImageStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE images SET status = ?, updated_at = ? WHERE image_hash = ?
`, string(st), formatTime(time.Now()), imageHash)
	if err != nil {
		return persistence("updating status of image "+imageHash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("updating status of image "+imageHash, err)
	}
	if n == 0 {
		return fmt.Errorf("image %s: %w", imageHash, domain.ErrNotFound)
	}
	return nil
}

// List retrieves all images, newest first.
func (r *ImageRepository) List(ctx context.Context) ([]*domain.Image, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT image_hash, width, height, status, created_at, updated_at
FROM images ORDER BY created_at DESC, image_hash
`)
	if err != nil {
		return nil, persistence("listing images", err)
	}
	defer rows.Close()

	var images []*domain.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, persistence("scanning image row", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("listing images", err)
	}
	return images, nil
}

// HashesByStatuses returns the hashes of images whose status is in the
// given set, sorted by hash. An empty set selects every image, which is the
// export engine's "all" sentinel.
func (r *ImageRepository) HashesByStatuses(ctx context.Context, statuses []domain.ImageStatus) ([]string, error) {
	query := "SELECT image_hash FROM images"
	var args []any
	if len(statuses) > 0 {
		query += " WHERE status IN (" + placeholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY image_hash"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("resolving image hashes by status", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, persistence("scanning image hash", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("resolving image hashes by status", err)
	}
	return hashes, nil
}

// Delete removes an image; the schema cascades the deletion to its layers.
func (r *ImageRepository) Delete(ctx context.Context, imageHash string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM images WHERE image_hash = ?", imageHash)
	if err != nil {
		return persistence("deleting image "+imageHash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("deleting image "+imageHash, err)
	}
	if n == 0 {
		return fmt.Errorf("image %s: %w", imageHash, domain.ErrNotFound)
	}
	return nil
}

// Count returns the total number of images.
func (r *ImageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images").Scan(&n); err != nil {
		return 0, persistence("counting images", err)
	}
	return n, nil
}

// NextByStatuses returns the image following currentHash (by insertion
// order) whose status is in the given set, wrapping to the oldest match
// when nothing newer qualifies. Used by the "next image" navigation.
func (r *ImageRepository) NextByStatuses(ctx context.Context, statuses []domain.ImageStatus, currentHash string) (*domain.Image, error) {
	if len(statuses) == 0 {
		return nil, fmt.Errorf("next image: %w", domain.ErrNotFound)
	}
	in := placeholders(len(statuses))
	var args []any
	for _, st := range statuses {
		args = append(args, string(st))
	}

	query := `SELECT image_hash, width, height, status, created_at, updated_at
FROM images WHERE status IN (` + in + `)`
	if currentHash != "" {
		query += " AND created_at > (SELECT created_at FROM images WHERE image_hash = ?)"
		args = append(args, currentHash)
	}
	query += " ORDER BY created_at ASC LIMIT 1"

	img, err := scanImage(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) && currentHash != "" {
		// Wrap around to the oldest candidate.
		args = args[:len(args)-1]
		img, err = scanImage(r.db.QueryRowContext(ctx, `
SELECT image_hash, width, height, status, created_at, updated_at
FROM images WHERE status IN (`+in+`) ORDER BY created_at ASC LIMIT 1`, args...))
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("next image: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, persistence("finding next image", err)
	}
	return img, nil
}

func scanImage(r rowScanner) (*domain.Image, error) {
	var (
		img        domain.Image
		rawStatus  string
		createdRaw string
		updatedRaw string
	)
	if err := r.Scan(&img.ImageHash, &img.Width, &img.Height, &rawStatus, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	img.Status = status.Normalize(rawStatus)
	img.CreatedAt = parseTime(createdRaw)
	img.UpdatedAt = parseTime(updatedRaw)
	return &img, nil
}

// Verify that ImageRepository implements domain.ImageStore
var _ domain.ImageStore = (*ImageRepository)(nil)
