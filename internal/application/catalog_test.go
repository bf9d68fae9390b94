package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jobrunner/mandor/internal/domain"
	"github.com/jobrunner/mandor/internal/ports/output"
)

func TestCatalogLoadExport(t *testing.T) {
	ctx := context.Background()
	f := newCatalogFixture(t.TempDir(), nil)
	f.decoder.locations["lampung"] = lampungLocations()

	var (
		mu      sync.Mutex
		changed []string
	)
	f.catalog.OnChange(func(id string) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, id)
	})

	if err := f.catalog.LoadExport(ctx, f.path("lampung.json")); err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}

	src, err := f.catalog.GetSource(ctx, "lampung")
	if err != nil {
		t.Fatalf("GetSource() error = %v", err)
	}
	if src.Status != domain.StatusReady || src.LocationCount != 3 || src.LoadedAt.IsZero() {
		t.Errorf("source = %+v, want ready with 3 locations", src)
	}

	loc, err := f.catalog.GetLocation(ctx, "1")
	if err != nil {
		t.Fatalf("GetLocation() error = %v", err)
	}
	if loc.Source != "lampung" {
		t.Errorf("location source = %q, want lampung", loc.Source)
	}

	if len(changed) != 1 || changed[0] != "lampung" {
		t.Errorf("change notifications = %v, want [lampung]", changed)
	}
}

func TestCatalogLoadExportErrors(t *testing.T) {
	ctx := context.Background()
	f := newCatalogFixture(t.TempDir(), nil)
	f.decoder.errs["broken"] = errBoom

	err := f.catalog.LoadExport(ctx, f.path("broken.json"))
	var importErr *domain.ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("LoadExport() error = %v, want *ImportError", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("LoadExport() error should wrap the decode error")
	}

	src, err := f.catalog.GetSource(ctx, "broken")
	if err != nil {
		t.Fatalf("GetSource() error = %v", err)
	}
	if src.Status != domain.StatusError || src.Error == "" {
		t.Errorf("source = %+v, want error status with message", src)
	}

	err = f.catalog.LoadExport(ctx, f.path("notes.txt"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("LoadExport(txt) error = %v, want ErrUnsupportedFormat", err)
	}
	if f.catalog.IsLoaded("notes") {
		t.Error("unsupported file should not be registered")
	}
}

func TestCatalogReloadReplacesLocations(t *testing.T) {
	ctx := context.Background()
	f := newCatalogFixture(t.TempDir(), nil)
	f.decoder.locations["lampung"] = lampungLocations()

	if err := f.catalog.LoadExport(ctx, f.path("lampung.json")); err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}

	f.decoder.locations["lampung"] = []domain.Location{{ID: "9", Name: "Kebun Baru"}}
	if err := f.catalog.LoadExport(ctx, f.path("lampung.json")); err != nil {
		t.Fatalf("LoadExport() again error = %v", err)
	}

	n, _ := f.catalog.LocationCount(ctx)
	if n != 1 {
		t.Errorf("LocationCount() = %d, want 1", n)
	}
	if f.catalog.SourceCount() != 1 {
		t.Errorf("SourceCount() = %d, want 1", f.catalog.SourceCount())
	}
}

func TestCatalogUnloadExport(t *testing.T) {
	ctx := context.Background()
	f := newCatalogFixture(t.TempDir(), nil)
	f.decoder.locations["lampung"] = lampungLocations()

	if err := f.catalog.UnloadExport(ctx, "lampung"); !errors.Is(err, domain.ErrSourceNotFound) {
		t.Errorf("UnloadExport(missing) error = %v, want ErrSourceNotFound", err)
	}

	if err := f.catalog.LoadExport(ctx, f.path("lampung.json")); err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}
	if err := f.catalog.UnloadExport(ctx, "lampung"); err != nil {
		t.Fatalf("UnloadExport() error = %v", err)
	}

	if f.catalog.IsLoaded("lampung") {
		t.Error("source should be removed")
	}
	if n, _ := f.catalog.LocationCount(ctx); n != 0 {
		t.Errorf("LocationCount() = %d, want 0", n)
	}
}

func TestCatalogUnloadExportDeleteFails(t *testing.T) {
	ctx := context.Background()
	f := newCatalogFixture(t.TempDir(), nil)
	f.decoder.locations["lampung"] = lampungLocations()

	if err := f.catalog.LoadExport(ctx, f.path("lampung.json")); err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}

	f.repo.deleteErr = errBoom
	if err := f.catalog.UnloadExport(ctx, "lampung"); !errors.Is(err, errBoom) {
		t.Fatalf("UnloadExport() error = %v, want errBoom", err)
	}

	src, err := f.catalog.GetSource(ctx, "lampung")
	if err != nil {
		t.Fatalf("GetSource() error = %v", err)
	}
	if src.Status != domain.StatusError {
		t.Errorf("status = %q, want error", src.Status)
	}
}

func TestCatalogLoadAll(t *testing.T) {
	ctx := context.Background()
	f := newCatalogFixture(t.TempDir(), nil)

	f.decoder.locations["lampung"] = lampungLocations()
	f.decoder.locations["riau"] = []domain.Location{{ID: "r1"}}
	f.storage.setObjects(
		output.StorageObject{Key: "lampung.json"},
		output.StorageObject{Key: "regions/riau.yaml"},
		output.StorageObject{Key: "broken.json"},
	)
	f.storage.downloadErr["broken.json"] = errBoom

	if err := f.catalog.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	sources, err := f.catalog.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources() error = %v", err)
	}
	if len(sources) != 2 || sources[0].ID != "lampung" || sources[1].ID != "riau" {
		t.Fatalf("sources = %+v, want lampung and riau in order", sources)
	}
	if sources[1].Path != filepath.Join(f.dir, "regions", "riau.yaml") {
		t.Errorf("riau path = %q", sources[1].Path)
	}
	if sources[1].Key != "regions/riau.yaml" {
		t.Errorf("riau key = %q", sources[1].Key)
	}
}

func TestCatalogLoadAllListError(t *testing.T) {
	f := newCatalogFixture(t.TempDir(), nil)
	f.storage.listErr = errBoom

	err := f.catalog.LoadAll(context.Background())
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("LoadAll() error = %v, want *StorageError", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("LoadAll() error should wrap the list error")
	}
}

func TestCatalogSync(t *testing.T) {
	ctx := context.Background()
	f := newCatalogFixture(t.TempDir(), nil)
	f.decoder.locations["lampung"] = lampungLocations()
	f.decoder.locations["riau"] = []domain.Location{{ID: "r1"}}
	f.decoder.locations["jambi"] = []domain.Location{{ID: "j1"}}

	f.storage.setObjects(
		output.StorageObject{Key: "lampung.json", ETag: "v1"},
		output.StorageObject{Key: "riau.json", Size: 10, LastModified: 100},
	)

	stats, err := f.catalog.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats != (SyncStats{Added: 2}) {
		t.Errorf("first Sync() = %+v, want 2 added", stats)
	}

	// Unchanged objects are not re-imported.
	stats, err = f.catalog.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats != (SyncStats{}) {
		t.Errorf("second Sync() = %+v, want no changes", stats)
	}
	if got := f.decoder.callCount("lampung"); got != 1 {
		t.Errorf("lampung decoded %d times, want 1", got)
	}

	// Write a local copy of riau so removal can delete it.
	riauPath := f.path("riau.json")
	if err := os.WriteFile(riauPath, []byte("[]"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f.storage.setObjects(
		output.StorageObject{Key: "lampung.json", ETag: "v2"},
		output.StorageObject{Key: "jambi.yaml"},
	)

	stats, err = f.catalog.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats != (SyncStats{Added: 1, Updated: 1, Removed: 1}) {
		t.Errorf("third Sync() = %+v, want 1 added, 1 updated, 1 removed", stats)
	}
	if f.catalog.IsLoaded("riau") {
		t.Error("riau should have been removed")
	}
	if _, err := os.Stat(riauPath); !os.IsNotExist(err) {
		t.Error("local copy of riau should have been deleted")
	}
	if _, err := f.catalog.GetLocation(ctx, "r1"); !errors.Is(err, domain.ErrLocationNotFound) {
		t.Errorf("riau locations should be gone, got %v", err)
	}
}

func TestCatalogSyncRetriesFailedSources(t *testing.T) {
	ctx := context.Background()
	f := newCatalogFixture(t.TempDir(), nil)
	f.decoder.errs["lampung"] = errBoom
	f.storage.setObjects(output.StorageObject{Key: "lampung.json"})

	if _, err := f.catalog.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if src, _ := f.catalog.GetSource(ctx, "lampung"); src == nil || src.Status != domain.StatusError {
		t.Fatalf("source = %+v, want error status", src)
	}

	delete(f.decoder.errs, "lampung")
	f.decoder.locations["lampung"] = lampungLocations()

	stats, err := f.catalog.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if stats.Updated != 1 {
		t.Errorf("Sync() = %+v, want the failed source re-imported", stats)
	}
	if src, _ := f.catalog.GetSource(ctx, "lampung"); src == nil || !src.IsReady() {
		t.Errorf("source = %+v, want ready", src)
	}
}

func TestObjectVersion(t *testing.T) {
	tests := []struct {
		name string
		obj  output.StorageObject
		want string
	}{
		{"etag wins", output.StorageObject{ETag: "abc", Size: 1, LastModified: 2}, "abc"},
		{"size and time", output.StorageObject{Size: 1, LastModified: 2}, "1@2"},
		{"no metadata", output.StorageObject{Key: "a.json"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := objectVersion(tt.obj); got != tt.want {
				t.Errorf("objectVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalogUpdatesMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := &recordingMetrics{}
	f := newCatalogFixture(t.TempDir(), metrics)
	f.decoder.locations["lampung"] = lampungLocations()
	f.decoder.locations["riau"] = []domain.Location{{ID: "r1"}}

	for _, name := range []string{"lampung.json", "riau.yaml"} {
		if err := f.catalog.LoadExport(ctx, f.path(name)); err != nil {
			t.Fatalf("LoadExport(%s) error = %v", name, err)
		}
	}
	if metrics.sourcesLoaded != 2 {
		t.Errorf("sources_loaded = %d, want 2", metrics.sourcesLoaded)
	}

	if err := f.catalog.UnloadExport(ctx, "riau"); err != nil {
		t.Fatalf("UnloadExport() error = %v", err)
	}
	if metrics.sourcesLoaded != 1 {
		t.Errorf("sources_loaded = %d, want 1", metrics.sourcesLoaded)
	}
}
