package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobrunner/mandor/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	repo, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleLocations() []domain.Location {
	return []domain.Location{
		{
			ID:              "2",
			Name:            "Kebun Dua",
			PlantationGroup: "PG1",
			Wilayah:         "Lampung",
			Coordinates:     "105,-4,106,-4,106,-5",
			UpdatedAt:       time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			ID:              "1",
			Name:            "Kebun Satu",
			PlantationGroup: "PG2",
			Wilayah:         "Lampung",
			Coordinates:     []any{map[string]any{"lat": -4.2, "lng": 105.1}},
		},
		{
			ID:              "3",
			Name:            "Kebun Tiga",
			PlantationGroup: "PG1",
			Wilayah:         "Riau",
		},
	}
}

func TestReplaceSourceAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.ReplaceSource(ctx, "lampung", sampleLocations()); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}

	loc, err := repo.Get(ctx, "2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loc.Name != "Kebun Dua" || loc.Source != "lampung" || loc.PlantationGroup != "PG1" {
		t.Errorf("Get() = %+v", loc)
	}
	if s, ok := loc.Coordinates.(string); !ok || s != "105,-4,106,-4,106,-5" {
		t.Errorf("Coordinates = %#v, want the raw string", loc.Coordinates)
	}
	if !loc.UpdatedAt.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v", loc.UpdatedAt)
	}

	objects, err := repo.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got := domain.NormalizeCoordinates(objects.Coordinates)
	if len(got) != 1 || got[0] != (domain.GeoPoint{Lat: -4.2, Lng: 105.1}) {
		t.Errorf("normalized stored objects = %v", got)
	}

	none, err := repo.Get(ctx, "3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if none.Coordinates != nil || !none.UpdatedAt.IsZero() {
		t.Errorf("Get(3) = %+v, want nil coordinates and zero time", none)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrLocationNotFound) {
		t.Errorf("Get() error = %v, want ErrLocationNotFound", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.ReplaceSource(ctx, "lampung", sampleLocations()); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if err := repo.ReplaceSource(ctx, "riau", []domain.Location{{ID: "9", PlantationGroup: "PG1", Wilayah: "Riau"}}); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}

	tests := []struct {
		name   string
		filter domain.LocationFilter
		want   []string
	}{
		{"all ordered by id", domain.LocationFilter{}, []string{"1", "2", "3", "9"}},
		{"by pg", domain.LocationFilter{PlantationGroup: "PG1"}, []string{"2", "3", "9"}},
		{"by pg and wilayah", domain.LocationFilter{PlantationGroup: "PG1", Wilayah: "Riau"}, []string{"3", "9"}},
		{"by source", domain.LocationFilter{Source: "riau"}, []string{"9"}},
		{"no match", domain.LocationFilter{Wilayah: "Jambi"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if locs == nil {
				t.Fatal("List() returned nil")
			}
			if len(locs) != len(tt.want) {
				t.Fatalf("len(List()) = %d, want %d", len(locs), len(tt.want))
			}
			for i, id := range tt.want {
				if locs[i].ID != id {
					t.Errorf("locs[%d].ID = %q, want %q", i, locs[i].ID, id)
				}
			}
		})
	}
}

func TestReplaceSourceReplaces(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.ReplaceSource(ctx, "lampung", sampleLocations()); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if err := repo.ReplaceSource(ctx, "lampung", []domain.Location{{ID: "4", Name: "Kebun Empat"}}); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	if _, err := repo.Get(ctx, "1"); !errors.Is(err, domain.ErrLocationNotFound) {
		t.Errorf("old row still present: %v", err)
	}
}

func TestReplaceSourceMovesDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.ReplaceSource(ctx, "a", []domain.Location{{ID: "1", Name: "from a"}}); err != nil {
		t.Fatalf("ReplaceSource(a) error = %v", err)
	}
	if err := repo.ReplaceSource(ctx, "b", []domain.Location{{ID: "1", Name: "from b"}}); err != nil {
		t.Fatalf("ReplaceSource(b) error = %v", err)
	}

	loc, err := repo.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loc.Source != "b" || loc.Name != "from b" {
		t.Errorf("Get() = %+v, want the row from source b", loc)
	}
}

func TestReplaceSourceRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.ReplaceSource(ctx, "lampung", sampleLocations()); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}

	bad := []domain.Location{{ID: "5", Coordinates: func() {}}}
	if err := repo.ReplaceSource(ctx, "lampung", bad); err == nil {
		t.Fatal("ReplaceSource() should fail for unencodable coordinates")
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3 after rollback", n)
	}
}

func TestDeleteSource(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.ReplaceSource(ctx, "lampung", sampleLocations()); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if err := repo.ReplaceSource(ctx, "riau", []domain.Location{{ID: "9"}}); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if err := repo.DeleteSource(ctx, "lampung"); err != nil {
		t.Fatalf("DeleteSource() error = %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "mandor.db")

	repo, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := repo.ReplaceSource(ctx, "lampung", sampleLocations()); err != nil {
		t.Fatalf("ReplaceSource() error = %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() again error = %v", err)
	}
	defer func() { _ = reopened.Close() }()

	n, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() after reopen = %d, want 3", n)
	}
}
