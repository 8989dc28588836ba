package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lewtec/maskbatch/internal/domain"
)

// LegacyReport summarizes what a normalization pass changed.
type LegacyReport struct {
	ImagesNormalized int
	LayersNormalized int
	LayersSplit      int
}

// legacyMaskEntry is the shape older automask runs stored: several masks
// packed into a single row, each with its own run-length data.
type legacyMaskEntry struct {
	SegmentationRLE domain.CompactMask `json:"segmentation_rle"`
	Score           *float64           `json:"score,omitempty"`
}

// NormalizeLegacy performs the one-shot migration from the legacy data
// shapes: image statuses in_progress_auto/in_progress_manual collapse to
// in_progress, completed becomes approved, legacy layer_type-style layer
// statuses are rewritten, and multi-mask rows are split so that every
// layer holds exactly one mask. Each split row gets a freshly generated
// layer id and inherits the parent's metadata. Running it again on an
// already-normalized store is a no-op.
func NormalizeLegacy(ctx context.Context, db *sql.DB) (LegacyReport, error) {
	var report LegacyReport

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return report, persistence("starting legacy normalization", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE images SET status = 'in_progress'
WHERE status IN ('in_progress_auto', 'in_progress_manual')`)
	if err != nil {
		return report, persistence("normalizing legacy in_progress statuses", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		report.ImagesNormalized += int(n)
	}

	res, err = tx.ExecContext(ctx, `UPDATE images SET status = 'approved' WHERE status = 'completed'`)
	if err != nil {
		return report, persistence("normalizing legacy completed statuses", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		report.ImagesNormalized += int(n)
	}

	res, err = tx.ExecContext(ctx, `
UPDATE mask_layers SET status = CASE status
    WHEN 'automask' THEN 'prediction'
    WHEN 'interactive' THEN 'prediction'
    WHEN 'final_edited' THEN 'edited'
    WHEN 'edit_commit' THEN 'edited'
END
WHERE status IN ('automask', 'interactive', 'final_edited', 'edit_commit')`)
	if err != nil {
		return report, persistence("normalizing legacy layer statuses", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		report.LayersNormalized += int(n)
	}

	split, err := splitMultiMaskRows(ctx, tx)
	if err != nil {
		return report, err
	}
	report.LayersSplit = split

	if err := tx.Commit(); err != nil {
		return report, persistence("committing legacy normalization", err)
	}
	return report, nil
}

// splitMultiMaskRows finds rows whose mask_data is a JSON array (the legacy
// multi-mask-per-row shape) and replaces each with one row per mask.
func splitMultiMaskRows(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT layer_id, image_hash_ref, name, class_labels, status, mask_data,
    display_color, source_metadata, created_at
FROM mask_layers WHERE mask_data LIKE '[%'`)
	if err != nil {
		return 0, persistence("finding legacy multi-mask rows", err)
	}

	type parent struct {
		layerID   string
		imageHash string
		name      string
		labels    string
		status    string
		color     sql.NullString
		source    sql.NullString
		createdAt string
		entries   []legacyMaskEntry
	}
	var parents []parent
	for rows.Next() {
		var p parent
		var maskRaw string
		if err := rows.Scan(&p.layerID, &p.imageHash, &p.name, &p.labels, &p.status,
			&maskRaw, &p.color, &p.source, &p.createdAt); err != nil {
			rows.Close()
			return 0, persistence("scanning legacy multi-mask row", err)
		}
		if err := json.Unmarshal([]byte(maskRaw), &p.entries); err != nil {
			// Not the known legacy shape; leave the row for operator
			// attention rather than guessing.
			continue
		}
		parents = append(parents, p)
	}
	if err := rows.Close(); err != nil {
		return 0, persistence("reading legacy multi-mask rows", err)
	}

	split := 0
	for _, p := range parents {
		now := formatTime(time.Now())
		for i, entry := range p.entries {
			maskData, err := json.Marshal(entry.SegmentationRLE)
			if err != nil {
				return split, fmt.Errorf("while re-encoding split mask: %w", err)
			}
			name := fmt.Sprintf("%s #%d", p.name, i+1)
			_, err = tx.ExecContext(ctx, `
INSERT INTO mask_layers (layer_id, image_hash_ref, name, class_labels, status,
    mask_data, display_color, source_metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), p.imageHash, name, p.labels, p.status,
				string(maskData), p.color, p.source, p.createdAt, now)
			if err != nil {
				return split, persistence("inserting split layer "+name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM mask_layers WHERE layer_id = ?", p.layerID); err != nil {
			return split, persistence("removing legacy multi-mask row "+p.layerID, err)
		}
		split += len(p.entries)
	}
	return split, nil
}
