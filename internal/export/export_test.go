package export

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/maskbatch/internal/domain"
	"github.com/lewtec/maskbatch/internal/repository"
)

type fixture struct {
	images *repository.ImageRepository
	layers *repository.LayerRepository
	engine *Engine
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := repository.SetupTestDB(t)
	t.Cleanup(func() { repository.CleanupTestDB(t, db) })

	images := repository.NewImageRepository(db)
	layers := repository.NewLayerRepository(db)
	return fixture{
		images: images,
		layers: layers,
		engine: New(images, layers, zerolog.Nop()),
	}
}

func (f fixture) addImage(t *testing.T, hash string, status domain.ImageStatus) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.images.Upsert(ctx, &domain.Image{ImageHash: hash, Width: 8, Height: 8}))
	if status != domain.ImageUnprocessed {
		require.NoError(t, f.images.SetStatus(ctx, hash, status))
	}
}

func (f fixture) addLayer(t *testing.T, hash, name string, labels []string, mask domain.CompactMask, status domain.LayerStatus) *domain.Layer {
	t.Helper()
	l, err := f.layers.Create(context.Background(), &domain.Layer{
		ImageHash:   hash,
		Name:        name,
		ClassLabels: labels,
		Mask:        mask,
		Status:      status,
	})
	require.NoError(t, err)
	return l
}

func smallMask() domain.CompactMask {
	// 8x8, a 2x2 block at (1,1).
	return domain.CompactMask{Size: [2]int{8, 8}, Counts: []int{9, 2, 6, 2, 45}}
}

func TestPrepareExportDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addImage(t, "bbb", domain.ImageApproved)
	f.addImage(t, "aaa", domain.ImageApproved)
	f.addImage(t, "ccc", domain.ImageInProgress)

	f.addLayer(t, "aaa", "zebra mask", []string{"zebra"}, smallMask(), domain.LayerApproved)
	f.addLayer(t, "bbb", "multi", []string{"cat", "dog"}, smallMask(), domain.LayerApproved)
	f.addLayer(t, "ccc", "not exported", []string{"cat"}, smallMask(), domain.LayerApproved)

	doc, err := f.engine.PrepareExport(ctx,
		[]domain.ImageStatus{domain.ImageApproved},
		[]domain.LayerStatus{domain.LayerApproved})
	require.NoError(t, err)

	t.Run("image ids follow sorted hashes", func(t *testing.T) {
		require.Len(t, doc.Images, 2)
		assert.Equal(t, "aaa", doc.Images[0].ImageHash)
		assert.Equal(t, 1, doc.Images[0].ID)
		assert.Equal(t, "bbb", doc.Images[1].ImageHash)
		assert.Equal(t, 2, doc.Images[1].ID)
		assert.Equal(t, 8, doc.Images[0].Width)
	})

	t.Run("categories are the sorted label union from 1", func(t *testing.T) {
		require.Len(t, doc.Categories, 3)
		assert.Equal(t, Category{ID: 1, Name: "cat"}, doc.Categories[0])
		assert.Equal(t, Category{ID: 2, Name: "dog"}, doc.Categories[1])
		assert.Equal(t, Category{ID: 3, Name: "zebra"}, doc.Categories[2])
	})

	t.Run("multi-label layer fans out sharing geometry", func(t *testing.T) {
		require.Len(t, doc.Annotations, 3)
		// aaa's zebra first, then bbb's cat and dog.
		assert.Equal(t, []int{1, 2, 3}, []int{doc.Annotations[0].ID, doc.Annotations[1].ID, doc.Annotations[2].ID})
		assert.Equal(t, 3, doc.Annotations[0].CategoryID)
		assert.Equal(t, 1, doc.Annotations[1].CategoryID)
		assert.Equal(t, 2, doc.Annotations[2].CategoryID)
		assert.Equal(t, doc.Annotations[1].BBox, doc.Annotations[2].BBox)
		assert.Equal(t, doc.Annotations[1].Area, doc.Annotations[2].Area)
		assert.Equal(t, [4]int{1, 1, 2, 2}, doc.Annotations[1].BBox)
		assert.Equal(t, 4, doc.Annotations[1].Area)
	})

	t.Run("summary", func(t *testing.T) {
		assert.Equal(t, Summary{Images: 2, Layers: 2, Annotations: 3}, doc.Summary)
	})
}

func TestPrepareExportEmptyFilterSelectsAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addImage(t, "one", domain.ImageUnprocessed)
	f.addImage(t, "two", domain.ImageSkip)
	f.addLayer(t, "one", "a", []string{"cat"}, smallMask(), domain.LayerPrediction)
	f.addLayer(t, "two", "b", []string{"cat"}, smallMask(), domain.LayerEdited)

	doc, err := f.engine.PrepareExport(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, doc.Images, 2)
	assert.Len(t, doc.Annotations, 2)
}

func TestPrepareExportSkipsCorruptAndUnlabeled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addImage(t, "img", domain.ImageInProgress)
	f.addLayer(t, "img", "good", []string{"cat"}, smallMask(), domain.LayerEdited)
	// Run total disagrees with the declared 8x8 size.
	f.addLayer(t, "img", "corrupt", []string{"cat"},
		domain.CompactMask{Size: [2]int{8, 8}, Counts: []int{3}}, domain.LayerEdited)
	f.addLayer(t, "img", "unlabeled", nil, smallMask(), domain.LayerEdited)

	doc, err := f.engine.PrepareExport(ctx, nil, nil)
	require.NoError(t, err)

	assert.Len(t, doc.Annotations, 1)
	assert.Equal(t, "good", doc.Annotations[0].LayerName)
	assert.Equal(t, 1, doc.Summary.SkippedCorrupt)
	assert.Equal(t, 1, doc.Summary.SkippedUnlabeled)
	assert.Equal(t, 3, doc.Summary.Layers)

	t.Run("malformed legacy mask exports with zero geometry", func(t *testing.T) {
		f.addLayer(t, "img", "legacy blank", []string{"cat"}, domain.CompactMask{}, domain.LayerEdited)
		doc, err := f.engine.PrepareExport(ctx, nil, nil)
		require.NoError(t, err)
		require.Len(t, doc.Annotations, 2)
		for _, a := range doc.Annotations {
			if a.LayerName == "legacy blank" {
				assert.Equal(t, [4]int{0, 0, 0, 0}, a.BBox)
				assert.Equal(t, 0, a.Area)
			}
		}
	})
}

func TestPrepareExportDeterminism(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, h := range []string{"delta", "alpha", "charlie", "bravo"} {
		f.addImage(t, h, domain.ImageInProgress)
		f.addLayer(t, h, "m1", []string{"dog", "cat"}, smallMask(), domain.LayerEdited)
		f.addLayer(t, h, "m2", []string{"bird"}, smallMask(), domain.LayerEdited)
	}

	first, err := f.engine.PrepareExport(ctx, nil, nil)
	require.NoError(t, err)
	second, err := f.engine.PrepareExport(ctx, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Images, second.Images)
	assert.Equal(t, first.Categories, second.Categories)
	assert.Equal(t, first.Annotations, second.Annotations)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addImage(t, "img-1", domain.ImageApproved)
	f.addImage(t, "img-2", domain.ImageInProgress)
	f.addLayer(t, "img-1", "a", []string{"cat", "dog"}, smallMask(), domain.LayerApproved)
	f.addLayer(t, "img-1", "b", []string{"cat"}, smallMask(), domain.LayerEdited)
	f.addLayer(t, "img-2", "c", []string{"bird"}, smallMask(), domain.LayerEdited)

	stats, err := f.engine.Stats(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Images)
	assert.Equal(t, 3, stats.Layers)
	assert.Equal(t, map[string]int{"cat": 2, "dog": 1, "bird": 1}, stats.LabelCounts)

	filtered, err := f.engine.Stats(ctx,
		[]domain.ImageStatus{domain.ImageApproved},
		[]domain.LayerStatus{domain.LayerApproved})
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Images)
	assert.Equal(t, 1, filtered.Layers)
	assert.Equal(t, map[string]int{"cat": 1, "dog": 1}, filtered.LabelCounts)
}
