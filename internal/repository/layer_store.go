package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lewtec/maskbatch/internal/domain"
)

// LayerRepository implements domain.LayerStore on SQLite.
type LayerRepository struct {
	db *sql.DB
}

// NewLayerRepository creates a new LayerRepository.
func NewLayerRepository(db *sql.DB) *LayerRepository {
	return &LayerRepository{db: db}
}

const layerColumns = `layer_id, image_hash_ref, name, class_labels, status,
mask_data, display_color, source_metadata, created_at, updated_at`

// Create persists a new layer. The store assigns the layer id and
// timestamps. Name collisions within the image fail with
// domain.ErrDuplicateName; the caller disambiguates and retries.
func (r *LayerRepository) Create(ctx context.Context, layer *domain.Layer) (*domain.Layer, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence("starting layer insert transaction", err)
	}
	defer tx.Rollback()

	var taken bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM mask_layers WHERE image_hash_ref = ? AND name = ?)",
		layer.ImageHash, layer.Name,
	).Scan(&taken)
	if err != nil {
		return nil, persistence("checking layer name uniqueness", err)
	}
	if taken {
		return nil, fmt.Errorf("layer name %q on image %s: %w",
			layer.Name, layer.ImageHash, domain.ErrDuplicateName)
	}

	created := *layer
	created.LayerID = uuid.NewString()
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	if created.Status == "" {
		created.Status = domain.LayerPrediction
	}

	labels, err := json.Marshal(created.ClassLabels)
	if err != nil {
		return nil, fmt.Errorf("while encoding class labels: %w", err)
	}
	maskData, err := json.Marshal(created.Mask)
	if err != nil {
		return nil, fmt.Errorf("while encoding mask data: %w", err)
	}
	source, err := json.Marshal(created.Source)
	if err != nil {
		return nil, fmt.Errorf("while encoding source metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO mask_layers (layer_id, image_hash_ref, name, class_labels, status,
    mask_data, display_color, source_metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, created.LayerID, created.ImageHash, created.Name, string(labels), string(created.Status),
		string(maskData), created.DisplayColor, string(source),
		formatTime(created.CreatedAt), formatTime(created.UpdatedAt))
	if err != nil {
		return nil, persistence("inserting layer "+created.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistence("committing layer insert", err)
	}
	return &created, nil
}

// Get retrieves a layer by id.
func (r *LayerRepository) Get(ctx context.Context, layerID string) (*domain.Layer, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+layerColumns+" FROM mask_layers WHERE layer_id = ?", layerID)
	layer, err := scanLayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("layer %s: %w", layerID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, persistence("fetching layer "+layerID, err)
	}
	return layer, nil
}

// Update applies a partial update to a layer. Only supplied fields change;
// updated_at always refreshes.
func (r *LayerRepository) Update(ctx context.Context, layerID string, upd domain.LayerUpdate) error {
	sets := "updated_at = ?"
	args := []any{formatTime(time.Now())}

	if upd.Name != nil {
		sets += ", name = ?"
		args = append(args, *upd.Name)
	}
	if upd.ClassLabels != nil {
		labels, err := json.Marshal(*upd.ClassLabels)
		if err != nil {
			return fmt.Errorf("while encoding class labels: %w", err)
		}
		sets += ", class_labels = ?"
		args = append(args, string(labels))
	}
	if upd.Status != nil {
		sets += ", status = ?"
		args = append(args, string(*upd.Status))
	}
	if upd.Mask != nil {
		maskData, err := json.Marshal(*upd.Mask)
		if err != nil {
			return fmt.Errorf("while encoding mask data: %w", err)
		}
		sets += ", mask_data = ?"
		args = append(args, string(maskData))
	}
	if upd.DisplayColor != nil {
		sets += ", display_color = ?"
		args = append(args, *upd.DisplayColor)
	}

	args = append(args, layerID)
	res, err := r.db.ExecContext(ctx, "UPDATE mask_layers SET "+sets+" WHERE layer_id = ?", args...)
	if err != nil {
		return persistence("updating layer "+layerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("updating layer "+layerID, err)
	}
	if n == 0 {
		return fmt.Errorf("layer %s: %w", layerID, domain.ErrNotFound)
	}
	return nil
}

// Delete removes a layer. A missing id reports domain.ErrNotFound rather
// than succeeding silently so callers can recognize delete races.
func (r *LayerRepository) Delete(ctx context.Context, layerID string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM mask_layers WHERE layer_id = ?", layerID)
	if err != nil {
		return persistence("deleting layer "+layerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence("deleting layer "+layerID, err)
	}
	if n == 0 {
		return fmt.Errorf("layer %s: %w", layerID, domain.ErrNotFound)
	}
	return nil
}

// ListForImage returns the image's layers newest first (new layers go to
// the top of the UI's layer panel).
func (r *LayerRepository) ListForImage(ctx context.Context, imageHash string, statuses ...domain.LayerStatus) ([]*domain.Layer, error) {
	query := "SELECT " + layerColumns + " FROM mask_layers WHERE image_hash_ref = ?"
	args := []any{imageHash}
	if len(statuses) > 0 {
		query += " AND status IN (" + placeholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY seq DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("listing layers for image "+imageHash, err)
	}
	defer rows.Close()
	return collectLayers(rows)
}

// ByStatuses batch-fetches layers for many images in a single query. The
// export engine depends on this being one round trip, not N+1.
func (r *LayerRepository) ByStatuses(ctx context.Context, imageHashes []string, statuses []domain.LayerStatus) (map[string][]*domain.Layer, error) {
	result := make(map[string][]*domain.Layer, len(imageHashes))
	if len(imageHashes) == 0 {
		return result, nil
	}

	query := "SELECT " + layerColumns + " FROM mask_layers WHERE image_hash_ref IN (" +
		placeholders(len(imageHashes)) + ")"
	var args []any
	for _, h := range imageHashes {
		args = append(args, h)
	}
	if len(statuses) > 0 {
		query += " AND status IN (" + placeholders(len(statuses)) + ")"
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY image_hash_ref, seq DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("batch fetching layers", err)
	}
	defer rows.Close()

	layers, err := collectLayers(rows)
	if err != nil {
		return nil, err
	}
	for _, l := range layers {
		result[l.ImageHash] = append(result[l.ImageHash], l)
	}
	return result, nil
}

// CountForImage returns the number of layers for the image.
func (r *LayerRepository) CountForImage(ctx context.Context, imageHash string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mask_layers WHERE image_hash_ref = ?", imageHash).Scan(&n)
	if err != nil {
		return 0, persistence("counting layers for image "+imageHash, err)
	}
	return n, nil
}

func collectLayers(rows *sql.Rows) ([]*domain.Layer, error) {
	var layers []*domain.Layer
	for rows.Next() {
		layer, err := scanLayer(rows)
		if err != nil {
			return nil, persistence("scanning layer row", err)
		}
		layers = append(layers, layer)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterating layer rows", err)
	}
	return layers, nil
}

func scanLayer(r rowScanner) (*domain.Layer, error) {
	var (
		layer      domain.Layer
		labelsRaw  string
		statusRaw  string
		maskRaw    string
		colorRaw   sql.NullString
		sourceRaw  sql.NullString
		createdRaw string
		updatedRaw string
	)
	err := r.Scan(&layer.LayerID, &layer.ImageHash, &layer.Name, &labelsRaw, &statusRaw,
		&maskRaw, &colorRaw, &sourceRaw, &createdRaw, &updatedRaw)
	if err != nil {
		return nil, err
	}

	layer.Status = normalizeLayerStatus(statusRaw)
	layer.DisplayColor = colorRaw.String
	layer.CreatedAt = parseTime(createdRaw)
	layer.UpdatedAt = parseTime(updatedRaw)

	if err := json.Unmarshal([]byte(labelsRaw), &layer.ClassLabels); err != nil {
		// Pre-migration rows stored a single bare label string.
		layer.ClassLabels = nil
		var single string
		if json.Unmarshal([]byte(labelsRaw), &single) == nil && single != "" {
			layer.ClassLabels = []string{single}
		}
	}
	// A mask that fails to parse stays a malformed compact form; the codec
	// reports it as corrupt where that matters.
	_ = json.Unmarshal([]byte(maskRaw), &layer.Mask)
	if sourceRaw.Valid && sourceRaw.String != "" {
		_ = json.Unmarshal([]byte(sourceRaw.String), &layer.Source)
	}
	return &layer, nil
}

// normalizeLayerStatus maps legacy layer_type values onto the current
// status set on read.
func normalizeLayerStatus(raw string) domain.LayerStatus {
	switch raw {
	case "automask", "interactive":
		return domain.LayerPrediction
	case "final_edited", "edit_commit":
		return domain.LayerEdited
	}
	switch st := domain.LayerStatus(raw); st {
	case domain.LayerPrediction, domain.LayerEdited, domain.LayerApproved, domain.LayerRejected:
		return st
	}
	return domain.LayerPrediction
}

// Verify that LayerRepository implements domain.LayerStore
var _ domain.LayerStore = (*LayerRepository)(nil)
