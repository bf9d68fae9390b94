package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jobrunner/mandor/internal/domain"
	"github.com/jobrunner/mandor/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRepository implements output.LocationRepository in memory.
type mockRepository struct {
	mu        sync.Mutex
	locations map[string]domain.Location
	listErr   error
	countErr  error
	deleteErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{locations: make(map[string]domain.Location)}
}

func (m *mockRepository) ReplaceSource(_ context.Context, sourceID string, locations []domain.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, loc := range m.locations {
		if loc.Source == sourceID {
			delete(m.locations, id)
		}
	}
	for _, loc := range locations {
		loc.Source = sourceID
		m.locations[loc.ID] = loc
	}
	return nil
}

func (m *mockRepository) DeleteSource(_ context.Context, sourceID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, loc := range m.locations {
		if loc.Source == sourceID {
			delete(m.locations, id)
		}
	}
	return nil
}

func (m *mockRepository) Get(_ context.Context, id string) (*domain.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loc, ok := m.locations[id]
	if !ok {
		return nil, domain.ErrLocationNotFound
	}
	return &loc, nil
}

func (m *mockRepository) List(_ context.Context, filter domain.LocationFilter) ([]domain.Location, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := []domain.Location{}
	for _, loc := range m.locations {
		if matchesFilter(filter, &loc) {
			result = append(result, loc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func matchesFilter(f domain.LocationFilter, l *domain.Location) bool {
	return (f.PlantationGroup == "" || f.PlantationGroup == l.PlantationGroup) &&
		(f.Wilayah == "" || f.Wilayah == l.Wilayah) &&
		(f.Source == "" || f.Source == l.Source)
}

func (m *mockRepository) Count(_ context.Context) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locations), nil
}

func (m *mockRepository) Close() error { return nil }

// mockDecoder returns canned locations keyed by source ID.
type mockDecoder struct {
	mu        sync.Mutex
	locations map[string][]domain.Location
	errs      map[string]error
	calls     map[string]int
}

func newMockDecoder() *mockDecoder {
	return &mockDecoder{
		locations: make(map[string][]domain.Location),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (m *mockDecoder) Decode(_ context.Context, path string) ([]domain.Location, error) {
	id := domain.DeriveSourceID(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[id]++

	if err := m.errs[id]; err != nil {
		return nil, err
	}
	return append([]domain.Location(nil), m.locations[id]...), nil
}

func (m *mockDecoder) Supports(name string) bool {
	return output.IsExportFile(name)
}

func (m *mockDecoder) callCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	mu          sync.Mutex
	objects     []output.StorageObject
	listErr     error
	downloadErr map[string]error
	downloads   []string
}

func (m *mockStorage) setObjects(objects ...output.StorageObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects = objects
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]output.StorageObject(nil), m.objects...), nil
}

func (m *mockStorage) Download(_ context.Context, key, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.downloads = append(m.downloads, dest)
	if err := m.downloadErr[key]; err != nil {
		return err
	}
	return nil
}

func (m *mockStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(key)), nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, obj := range m.objects {
		if obj.Key == key {
			return true, nil
		}
	}
	return false, nil
}

// recordingMetrics counts cache lookups and normalizations.
type recordingMetrics struct {
	output.NoOpMetrics

	mu             sync.Mutex
	cacheHits      int
	cacheMisses    int
	normalizations map[string]int
	sourcesLoaded  int
}

func (m *recordingMetrics) IncCacheLookups(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
}

func (m *recordingMetrics) IncNormalizations(shape string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.normalizations == nil {
		m.normalizations = make(map[string]int)
	}
	m.normalizations[shape]++
}

func (m *recordingMetrics) SetSourcesLoaded(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sourcesLoaded = count
}

type catalogFixture struct {
	catalog *LocationCatalog
	repo    *mockRepository
	decoder *mockDecoder
	storage *mockStorage
	dir     string
}

func newCatalogFixture(dir string, metrics output.MetricsCollector) *catalogFixture {
	f := &catalogFixture{
		repo:    newMockRepository(),
		decoder: newMockDecoder(),
		storage: &mockStorage{downloadErr: make(map[string]error)},
		dir:     dir,
	}
	f.catalog = NewLocationCatalog(f.repo, f.decoder, f.storage, metrics, testLogger(), CatalogConfig{
		LocalPath:   dir,
		Concurrency: 2,
	})
	return f
}

func (f *catalogFixture) path(key string) string {
	return filepath.Join(f.dir, key)
}

var errBoom = errors.New("boom")

// Square around (-4.5, 105.5).
const lampungSquare = "105,-4,106,-4,106,-5,105,-5"

func lampungLocations() []domain.Location {
	return []domain.Location{
		{ID: "1", Name: "Kebun Satu", PlantationGroup: "PG1", Wilayah: "Lampung", Coordinates: lampungSquare},
		{ID: "2", Name: "Kebun Dua", PlantationGroup: "PG2", Wilayah: "Lampung", Coordinates: "[[105.2,-4.2],[105.8,-4.2],[105.8,-4.8]]"},
		{ID: "3", Name: "Kebun Tiga", PlantationGroup: "PG1", Wilayah: "Lampung"},
	}
}
