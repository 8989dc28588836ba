// Package export builds COCO-style instance segmentation documents from the
// stored layers. Export is read-only and repeatable: given the same store
// contents and filters, two runs produce identical output, which keeps
// exported datasets diffable.
package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/lewtec/maskbatch/internal/domain"
	"github.com/lewtec/maskbatch/internal/maskcodec"
)

// Document is the full export payload.
type Document struct {
	Info        Info         `json:"info"`
	Images      []ImageEntry `json:"images"`
	Categories  []Category   `json:"categories"`
	Annotations []Annotation `json:"annotations"`
	Summary     Summary      `json:"summary"`
}

// Info identifies the export run.
type Info struct {
	Description string    `json:"description"`
	DateCreated time.Time `json:"date_created"`
}

// ImageEntry is one exported image with its document-local id.
type ImageEntry struct {
	ID        int    `json:"id"`
	ImageHash string `json:"image_hash"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Category maps one class label to its document-local id.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Annotation is one labeled mask record. A layer with several labels
// produces several annotations sharing geometry.
type Annotation struct {
	ID           int                   `json:"id"`
	ImageID      int                   `json:"image_id"`
	CategoryID   int                   `json:"category_id"`
	Segmentation domain.CompactMask    `json:"segmentation"`
	Area         int                   `json:"area"`
	BBox         [4]int                `json:"bbox"`
	IsCrowd      int                   `json:"iscrowd"`
	LayerName    string                `json:"layer_name"`
	LayerStatus  domain.LayerStatus    `json:"layer_status"`
	Source       domain.SourceMetadata `json:"source_metadata"`
}

// Summary counts what went into the document and what was left out.
type Summary struct {
	Images           int `json:"images"`
	Layers           int `json:"layers"`
	Annotations      int `json:"annotations"`
	SkippedCorrupt   int `json:"skipped_corrupt"`
	SkippedUnlabeled int `json:"skipped_unlabeled"`
}

// Stats previews an export without building annotations, for the export
// dialog: how many images and layers match the filters and how often each
// label occurs.
type Stats struct {
	Images      int            `json:"images"`
	Layers      int            `json:"layers"`
	LabelCounts map[string]int `json:"label_counts"`
}

// Engine reads the stores and reconciles layers into export documents.
type Engine struct {
	images domain.ImageStore
	layers domain.LayerStore
	log    zerolog.Logger
}

// New creates an export engine over the given stores.
func New(images domain.ImageStore, layers domain.LayerStore, log zerolog.Logger) *Engine {
	return &Engine{
		images: images,
		layers: layers,
		log:    log.With().Str("component", "export").Logger(),
	}
}

// PrepareExport builds the document for every image whose status is in
// imageStatuses and every layer whose status is in layerStatuses; an empty
// filter selects everything. Category ids are assigned from the sorted
// union of labels starting at 1, image ids follow sorted image hashes, and
// annotation ids run sequentially across the document. A layer whose mask
// fails to decode is skipped and counted; a layer without labels produces
// no annotation.
func (e *Engine) PrepareExport(ctx context.Context, imageStatuses []domain.ImageStatus, layerStatuses []domain.LayerStatus) (*Document, error) {
	hashes, err := e.images.HashesByStatuses(ctx, imageStatuses)
	if err != nil {
		return nil, fmt.Errorf("while resolving export images: %w", err)
	}
	byImage, err := e.layers.ByStatuses(ctx, hashes, layerStatuses)
	if err != nil {
		return nil, fmt.Errorf("while fetching export layers: %w", err)
	}
	dims, err := e.imageDims(ctx)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Info: Info{
			Description: "maskbatch export",
			DateCreated: time.Now().UTC(),
		},
	}

	categoryID := e.categoryIndex(byImage)
	for name := range categoryID {
		doc.Categories = append(doc.Categories, Category{ID: categoryID[name], Name: name})
	}
	sort.Slice(doc.Categories, func(i, j int) bool { return doc.Categories[i].ID < doc.Categories[j].ID })

	annotationID := 0
	for i, hash := range hashes {
		imageID := i + 1
		entry := ImageEntry{ID: imageID, ImageHash: hash}
		if d, ok := dims[hash]; ok {
			entry.Width, entry.Height = d[0], d[1]
		}
		doc.Images = append(doc.Images, entry)

		for _, layer := range byImage[hash] {
			doc.Summary.Layers++

			if _, err := maskcodec.Decode(layer.Mask); err != nil {
				doc.Summary.SkippedCorrupt++
				e.log.Warn().Err(err).Str("layer", layer.LayerID).Msg("skipping layer with corrupt mask")
				continue
			}
			if len(layer.ClassLabels) == 0 {
				doc.Summary.SkippedUnlabeled++
				continue
			}

			box, area := maskcodec.BBoxArea(layer.Mask)
			for _, label := range layer.ClassLabels {
				annotationID++
				doc.Annotations = append(doc.Annotations, Annotation{
					ID:           annotationID,
					ImageID:      imageID,
					CategoryID:   categoryID[label],
					Segmentation: layer.Mask,
					Area:         area,
					BBox:         [4]int{box.X, box.Y, box.Width, box.Height},
					LayerName:    layer.Name,
					LayerStatus:  layer.Status,
					Source:       layer.Source,
				})
			}
		}
	}

	doc.Summary.Images = len(doc.Images)
	doc.Summary.Annotations = len(doc.Annotations)
	return doc, nil
}

// Stats summarizes what an export with the given filters would contain.
func (e *Engine) Stats(ctx context.Context, imageStatuses []domain.ImageStatus, layerStatuses []domain.LayerStatus) (*Stats, error) {
	hashes, err := e.images.HashesByStatuses(ctx, imageStatuses)
	if err != nil {
		return nil, fmt.Errorf("while resolving export images: %w", err)
	}
	byImage, err := e.layers.ByStatuses(ctx, hashes, layerStatuses)
	if err != nil {
		return nil, fmt.Errorf("while fetching export layers: %w", err)
	}

	stats := &Stats{
		Images:      len(hashes),
		LabelCounts: make(map[string]int),
	}
	for _, layers := range byImage {
		stats.Layers += len(layers)
		for _, layer := range layers {
			for _, label := range layer.ClassLabels {
				stats.LabelCounts[label]++
			}
		}
	}
	return stats, nil
}

// categoryIndex assigns ids to the lexicographically sorted union of all
// labels, starting at 1.
func (e *Engine) categoryIndex(byImage map[string][]*domain.Layer) map[string]int {
	seen := make(map[string]bool)
	for _, layers := range byImage {
		for _, layer := range layers {
			for _, label := range layer.ClassLabels {
				seen[label] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i + 1
	}
	return index
}

// imageDims maps every known hash to its pixel dimensions.
func (e *Engine) imageDims(ctx context.Context) (map[string][2]int, error) {
	images, err := e.images.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("while listing image dimensions: %w", err)
	}
	dims := make(map[string][2]int, len(images))
	for _, img := range images {
		dims[img.ImageHash] = [2]int{img.Width, img.Height}
	}
	return dims, nil
}
