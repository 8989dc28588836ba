package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/lewtec/maskbatch/internal/domain"
)

func setupLayerRepo(t *testing.T) (*LayerRepository, func()) {
	t.Helper()
	db := SetupTestDB(t)
	images := NewImageRepository(db)
	for _, h := range []string{"img-1", "img-2"} {
		if err := images.Upsert(context.Background(), &domain.Image{ImageHash: h, Width: 8, Height: 8}); err != nil {
			t.Fatalf("Upsert(%s) error = %v", h, err)
		}
	}
	return NewLayerRepository(db), func() { CleanupTestDB(t, db) }
}

func TestLayerRepository_Create(t *testing.T) {
	repo, cleanup := setupLayerRepo(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("assigns id, timestamps and default status", func(t *testing.T) {
		created, err := repo.Create(ctx, &domain.Layer{
			ImageHash: "img-1",
			Name:      "Mask 1",
			Mask:      domain.CompactMask{Size: [2]int{2, 2}, Counts: []int{1, 3}},
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if created.LayerID == "" {
			t.Error("LayerID should be assigned")
		}
		if created.Status != domain.LayerPrediction {
			t.Errorf("Status = %v, want prediction default", created.Status)
		}
		if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
			t.Error("timestamps should be set")
		}
	})

	t.Run("duplicate name on same image is rejected", func(t *testing.T) {
		_, err := repo.Create(ctx, &domain.Layer{ImageHash: "img-1", Name: "Mask 1"})
		if !errors.Is(err, domain.ErrDuplicateName) {
			t.Errorf("Create() error = %v, want ErrDuplicateName", err)
		}
	})

	t.Run("same name on another image is fine", func(t *testing.T) {
		if _, err := repo.Create(ctx, &domain.Layer{ImageHash: "img-2", Name: "Mask 1"}); err != nil {
			t.Errorf("Create() error = %v", err)
		}
	})
}

func TestLayerRepository_GetRoundTrip(t *testing.T) {
	repo, cleanup := setupLayerRepo(t)
	defer cleanup()
	ctx := context.Background()

	score := 0.91
	created, err := repo.Create(ctx, &domain.Layer{
		ImageHash:    "img-1",
		Name:         "cat 1",
		ClassLabels:  []string{"cat", "animal"},
		Status:       domain.LayerEdited,
		Mask:         domain.CompactMask{Size: [2]int{4, 4}, Counts: []int{5, 6, 5}},
		DisplayColor: "#ff8800",
		Source: domain.SourceMetadata{
			Kind:     domain.SourceAutomask,
			Automask: &domain.AutomaskSource{Score: &score},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, created.LayerID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "cat 1" || got.Status != domain.LayerEdited || got.DisplayColor != "#ff8800" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.ClassLabels) != 2 || got.ClassLabels[0] != "cat" {
		t.Errorf("ClassLabels = %v, want [cat animal]", got.ClassLabels)
	}
	if got.Mask.Size != [2]int{4, 4} || len(got.Mask.Counts) != 3 {
		t.Errorf("Mask = %+v, want size [4 4] with 3 runs", got.Mask)
	}
	if got.Source.Kind != domain.SourceAutomask || got.Source.Automask == nil || *got.Source.Automask.Score != score {
		t.Errorf("Source = %+v, want automask with score %v", got.Source, score)
	}

	if _, err := repo.Get(ctx, "missing-id"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLayerRepository_Update(t *testing.T) {
	repo, cleanup := setupLayerRepo(t)
	defer cleanup()
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.Layer{
		ImageHash:   "img-1",
		Name:        "Mask 1",
		ClassLabels: []string{"dog"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("only supplied fields change", func(t *testing.T) {
		status := domain.LayerApproved
		if err := repo.Update(ctx, created.LayerID, domain.LayerUpdate{Status: &status}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		got, err := repo.Get(ctx, created.LayerID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != domain.LayerApproved {
			t.Errorf("Status = %v, want approved", got.Status)
		}
		if got.Name != "Mask 1" || len(got.ClassLabels) != 1 {
			t.Errorf("untouched fields changed: %+v", got)
		}
		if !got.UpdatedAt.After(created.UpdatedAt) && !got.UpdatedAt.Equal(created.UpdatedAt) {
			t.Errorf("UpdatedAt went backwards: %v vs %v", got.UpdatedAt, created.UpdatedAt)
		}
	})

	t.Run("mask and labels replace wholesale", func(t *testing.T) {
		mask := domain.CompactMask{Size: [2]int{2, 2}, Counts: []int{0, 4}}
		labels := []string{"cat", "dog"}
		err := repo.Update(ctx, created.LayerID, domain.LayerUpdate{Mask: &mask, ClassLabels: &labels})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		got, err := repo.Get(ctx, created.LayerID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Mask.Size != [2]int{2, 2} || len(got.ClassLabels) != 2 {
			t.Errorf("Update did not apply: %+v", got)
		}
	})

	t.Run("unknown id is ErrNotFound", func(t *testing.T) {
		name := "x"
		err := repo.Update(ctx, "missing-id", domain.LayerUpdate{Name: &name})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestLayerRepository_Delete(t *testing.T) {
	repo, cleanup := setupLayerRepo(t)
	defer cleanup()
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.Layer{ImageHash: "img-1", Name: "Mask 1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.Delete(ctx, created.LayerID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, created.LayerID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestLayerRepository_ListForImage(t *testing.T) {
	repo, cleanup := setupLayerRepo(t)
	defer cleanup()
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := repo.Create(ctx, &domain.Layer{ImageHash: "img-1", Name: name}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}
	approved, err := repo.Create(ctx, &domain.Layer{
		ImageHash: "img-1", Name: "fourth", Status: domain.LayerApproved,
	})
	if err != nil {
		t.Fatalf("Create(fourth) error = %v", err)
	}

	t.Run("newest first", func(t *testing.T) {
		layers, err := repo.ListForImage(ctx, "img-1")
		if err != nil {
			t.Fatalf("ListForImage() error = %v", err)
		}
		if len(layers) != 4 {
			t.Fatalf("got %d layers, want 4", len(layers))
		}
		if layers[0].Name != "fourth" || layers[3].Name != "first" {
			t.Errorf("order = [%s .. %s], want newest first", layers[0].Name, layers[3].Name)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		layers, err := repo.ListForImage(ctx, "img-1", domain.LayerApproved)
		if err != nil {
			t.Fatalf("ListForImage() error = %v", err)
		}
		if len(layers) != 1 || layers[0].LayerID != approved.LayerID {
			t.Errorf("filtered layers = %v, want only the approved one", layers)
		}
	})

	t.Run("image without layers returns empty", func(t *testing.T) {
		layers, err := repo.ListForImage(ctx, "img-2")
		if err != nil {
			t.Fatalf("ListForImage() error = %v", err)
		}
		if len(layers) != 0 {
			t.Errorf("got %d layers, want 0", len(layers))
		}
	})
}

func TestLayerRepository_ByStatuses(t *testing.T) {
	repo, cleanup := setupLayerRepo(t)
	defer cleanup()
	ctx := context.Background()

	mk := func(hash, name string, status domain.LayerStatus) {
		t.Helper()
		if _, err := repo.Create(ctx, &domain.Layer{ImageHash: hash, Name: name, Status: status}); err != nil {
			t.Fatalf("Create(%s/%s) error = %v", hash, name, err)
		}
	}
	mk("img-1", "a", domain.LayerApproved)
	mk("img-1", "b", domain.LayerPrediction)
	mk("img-2", "c", domain.LayerApproved)
	mk("img-2", "d", domain.LayerEdited)

	t.Run("groups by image and honors filter", func(t *testing.T) {
		got, err := repo.ByStatuses(ctx, []string{"img-1", "img-2"},
			[]domain.LayerStatus{domain.LayerApproved, domain.LayerEdited})
		if err != nil {
			t.Fatalf("ByStatuses() error = %v", err)
		}
		if len(got["img-1"]) != 1 || got["img-1"][0].Name != "a" {
			t.Errorf("img-1 layers = %v, want [a]", got["img-1"])
		}
		if len(got["img-2"]) != 2 {
			t.Errorf("img-2 layers = %v, want 2 entries", got["img-2"])
		}
	})

	t.Run("no hashes means empty result", func(t *testing.T) {
		got, err := repo.ByStatuses(ctx, nil, nil)
		if err != nil {
			t.Fatalf("ByStatuses() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %v, want empty map", got)
		}
	})
}

func TestLayerRepository_LegacyRows(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	images := NewImageRepository(db)
	repo := NewLayerRepository(db)
	ctx := context.Background()

	if err := images.Upsert(ctx, &domain.Image{ImageHash: "img-1", Width: 4, Height: 4}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	MustExec(t, db, `INSERT INTO mask_layers (layer_id, image_hash_ref, name, class_labels, status,
    mask_data, created_at, updated_at)
VALUES ('old-1', 'img-1', 'legacy', '"cat"', 'automask',
    '{"size":[4,4],"counts":[16]}', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z')`)

	got, err := repo.Get(ctx, "old-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.LayerPrediction {
		t.Errorf("legacy automask read as %v, want prediction", got.Status)
	}
	if len(got.ClassLabels) != 1 || got.ClassLabels[0] != "cat" {
		t.Errorf("legacy bare label read as %v, want [cat]", got.ClassLabels)
	}
}
