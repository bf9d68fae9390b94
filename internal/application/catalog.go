// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/mandor/internal/domain"
	"github.com/jobrunner/mandor/internal/ports/input"
	"github.com/jobrunner/mandor/internal/ports/output"
)

// DefaultImportConcurrency bounds concurrent downloads in LoadAll and Sync.
const DefaultImportConcurrency = 4

// ChangeFunc is called after a source was imported or removed.
type ChangeFunc func(sourceID string)

// LocationCatalog tracks imported export sources and serves their locations.
type LocationCatalog struct {
	mu       sync.RWMutex
	sources  map[string]*sourceEntry
	onChange []ChangeFunc

	repo        output.LocationRepository
	decoder     output.ExportDecoder
	storage     output.ObjectStorage
	metrics     output.MetricsCollector
	logger      *slog.Logger
	localPath   string
	concurrency int
}

type sourceEntry struct {
	source  domain.Source
	version string // storage object version the import was made from
}

var _ input.LocationCatalog = (*LocationCatalog)(nil)

// CatalogConfig holds configuration for the location catalog.
type CatalogConfig struct {
	LocalPath   string // Directory exports are downloaded to
	Concurrency int
}

// NewLocationCatalog creates a new location catalog.
func NewLocationCatalog(
	repo output.LocationRepository,
	decoder output.ExportDecoder,
	storage output.ObjectStorage,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg CatalogConfig,
) *LocationCatalog {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultImportConcurrency
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	return &LocationCatalog{
		sources:     make(map[string]*sourceEntry),
		repo:        repo,
		decoder:     decoder,
		storage:     storage,
		metrics:     metrics,
		logger:      logger,
		localPath:   cfg.LocalPath,
		concurrency: cfg.Concurrency,
	}
}

// OnChange registers fn to be called after every import or removal.
func (c *LocationCatalog) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *LocationCatalog) notify(sourceID string) {
	c.mu.RLock()
	listeners := append([]ChangeFunc(nil), c.onChange...)
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(sourceID)
	}
}

// LoadExport imports the export file at path, replacing every location
// previously imported from the same source.
func (c *LocationCatalog) LoadExport(ctx context.Context, path string) error {
	return c.loadExport(ctx, path, output.StorageObject{})
}

func (c *LocationCatalog) loadExport(ctx context.Context, path string, obj output.StorageObject) error {
	sourceID := domain.DeriveSourceID(path)
	if sourceID == "" {
		return &domain.ImportError{Path: path, Err: domain.ErrInvalidInput}
	}
	if !c.decoder.Supports(path) {
		return &domain.ImportError{SourceID: sourceID, Path: path, Err: domain.ErrUnsupportedFormat}
	}

	c.logger.Info("importing export", "source", sourceID, "path", path)
	c.setSource(sourceID, func(s *domain.Source) {
		s.Key = obj.Key
		s.Path = path
		s.Status = domain.StatusLoading
		s.Error = ""
	})

	count, err := c.importFile(ctx, sourceID, path)
	if err != nil {
		c.setSource(sourceID, func(s *domain.Source) {
			s.Status = domain.StatusError
			s.Error = err.Error()
		})
		c.logger.Error("failed to import export", "source", sourceID, "path", path, "error", err)
		c.updateMetrics(ctx)
		return &domain.ImportError{SourceID: sourceID, Path: path, Err: err}
	}

	var size int64
	if info, statErr := os.Stat(path); statErr == nil {
		size = info.Size()
	}

	c.mu.Lock()
	if entry, ok := c.sources[sourceID]; ok {
		entry.source.Status = domain.StatusReady
		entry.source.LocationCount = count
		entry.source.Size = size
		entry.source.LoadedAt = time.Now()
		entry.version = objectVersion(obj)
	}
	c.mu.Unlock()

	c.updateMetrics(ctx)
	c.logger.Info("export imported", "source", sourceID, "locations", count)
	c.notify(sourceID)
	return nil
}

func (c *LocationCatalog) importFile(ctx context.Context, sourceID, path string) (int, error) {
	start := time.Now()
	locations, err := c.decoder.Decode(ctx, path)
	c.metrics.ObserveStorageDuration("decode", time.Since(start))
	c.metrics.IncStorageOperations("decode", err == nil)
	if err != nil {
		return 0, err
	}

	withCoords := 0
	for i := range locations {
		locations[i].Source = sourceID
		if locations[i].HasCoordinates() {
			withCoords++
		}
	}
	if missing := len(locations) - withCoords; missing > 0 {
		c.logger.Warn("locations without coordinates", "source", sourceID, "count", missing)
	}

	if err := c.repo.ReplaceSource(ctx, sourceID, locations); err != nil {
		return 0, fmt.Errorf("storing locations: %w", err)
	}
	return len(locations), nil
}

// setSource creates the entry if needed and applies fn under the lock.
func (c *LocationCatalog) setSource(sourceID string, fn func(s *domain.Source)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.sources[sourceID]
	if !ok {
		entry = &sourceEntry{source: domain.Source{ID: sourceID}}
		c.sources[sourceID] = entry
	}
	fn(&entry.source)
}

// UnloadExport removes a source and its locations.
func (c *LocationCatalog) UnloadExport(ctx context.Context, sourceID string) error {
	c.mu.Lock()
	entry, ok := c.sources[sourceID]
	if !ok {
		c.mu.Unlock()
		return domain.ErrSourceNotFound
	}
	entry.source.Status = domain.StatusUnloading
	c.mu.Unlock()

	c.logger.Info("unloading export", "source", sourceID)

	if err := c.repo.DeleteSource(ctx, sourceID); err != nil {
		c.setSource(sourceID, func(s *domain.Source) {
			s.Status = domain.StatusError
			s.Error = err.Error()
		})
		c.logger.Error("failed to delete locations", "source", sourceID, "error", err)
		return err
	}

	c.mu.Lock()
	delete(c.sources, sourceID)
	c.mu.Unlock()

	c.updateMetrics(ctx)
	c.notify(sourceID)
	return nil
}

// LoadAll downloads and imports every export listed by storage. Failing
// exports are logged and skipped.
func (c *LocationCatalog) LoadAll(ctx context.Context) error {
	c.logger.Info("loading all exports from storage")

	objects, err := c.listObjects(ctx)
	if err != nil {
		return err
	}

	c.importObjects(ctx, objects)
	return nil
}

// SyncStats contains statistics from a sync operation.
type SyncStats struct {
	Added   int
	Updated int
	Removed int
}

// Sync reconciles the catalog with storage: new exports are imported,
// changed exports re-imported and vanished exports removed together with
// their local copy.
func (c *LocationCatalog) Sync(ctx context.Context) (SyncStats, error) {
	c.logger.Info("syncing exports from storage")

	objects, err := c.listObjects(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	remote := make(map[string]output.StorageObject, len(objects))
	for _, obj := range objects {
		remote[domain.DeriveSourceID(obj.Key)] = obj
	}

	var added, updated []output.StorageObject
	c.mu.RLock()
	for id, obj := range remote {
		entry, ok := c.sources[id]
		switch {
		case !ok:
			added = append(added, obj)
		case entry.source.Status == domain.StatusError || entry.version != objectVersion(obj):
			updated = append(updated, obj)
		}
	}
	var removed []string
	for id := range c.sources {
		if _, ok := remote[id]; !ok {
			removed = append(removed, id)
		}
	}
	c.mu.RUnlock()

	stats := SyncStats{
		Added:   c.importObjects(ctx, added),
		Updated: c.importObjects(ctx, updated),
	}

	for _, id := range removed {
		path := c.sourcePath(id)

		if err := c.UnloadExport(ctx, id); err != nil {
			c.logger.Error("failed to unload removed export", "source", id, "error", err)
			continue
		}

		if path != "" && c.localPath != "" {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn("failed to delete local copy", "path", path, "error", err)
			}
		}
		stats.Removed++
	}

	c.logger.Info("sync completed",
		"added", stats.Added,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"total", c.SourceCount(),
	)
	return stats, nil
}

func (c *LocationCatalog) listObjects(ctx context.Context) ([]output.StorageObject, error) {
	start := time.Now()
	objects, err := c.storage.List(ctx)
	c.metrics.ObserveStorageDuration("list", time.Since(start))
	c.metrics.IncStorageOperations("list", err == nil)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}
	return objects, nil
}

// importObjects downloads and imports objects with bounded concurrency and
// returns the number imported successfully.
func (c *LocationCatalog) importObjects(ctx context.Context, objects []output.StorageObject) int {
	if len(objects) == 0 {
		return 0
	}

	var (
		mu sync.Mutex
		ok int
	)

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for _, obj := range objects {
		g.Go(func() error {
			// Failures are logged per object and do not stop the others.
			if err := c.fetchAndLoad(ctx, obj); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return ok
}

func (c *LocationCatalog) fetchAndLoad(ctx context.Context, obj output.StorageObject) error {
	localPath := filepath.Join(c.localPath, filepath.FromSlash(obj.Key))

	start := time.Now()
	err := c.storage.Download(ctx, obj.Key, localPath)
	c.metrics.ObserveStorageDuration("download", time.Since(start))
	c.metrics.IncStorageOperations("download", err == nil)
	if err != nil {
		c.logger.Error("failed to download export", "key", obj.Key, "error", err)
		return err
	}

	return c.loadExport(ctx, localPath, obj)
}

func (c *LocationCatalog) sourcePath(sourceID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.sources[sourceID]; ok {
		return entry.source.Path
	}
	return ""
}

// objectVersion identifies the content of a storage object. Objects without
// any metadata have an empty version and are never re-imported.
func objectVersion(obj output.StorageObject) string {
	if obj.ETag != "" {
		return obj.ETag
	}
	if obj.Size == 0 && obj.LastModified == 0 {
		return ""
	}
	return strconv.FormatInt(obj.Size, 10) + "@" + strconv.FormatInt(obj.LastModified, 10)
}

// ListSources returns all registered sources ordered by ID.
func (c *LocationCatalog) ListSources(_ context.Context) ([]domain.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sources := make([]domain.Source, 0, len(c.sources))
	for _, entry := range c.sources {
		sources = append(sources, entry.source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources, nil
}

// GetSource returns a source by ID.
func (c *LocationCatalog) GetSource(_ context.Context, sourceID string) (*domain.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.sources[sourceID]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	src := entry.source
	return &src, nil
}

// IsLoaded returns true if a source with the given ID is registered.
func (c *LocationCatalog) IsLoaded(sourceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sources[sourceID]
	return ok
}

// SourceCount returns the number of registered sources.
func (c *LocationCatalog) SourceCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources)
}

// ReadySourceCount returns the number of imported sources.
func (c *LocationCatalog) ReadySourceCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, entry := range c.sources {
		if entry.source.IsReady() {
			n++
		}
	}
	return n
}

// ListLocations returns the stored locations matching the filter.
func (c *LocationCatalog) ListLocations(ctx context.Context, filter domain.LocationFilter) ([]domain.Location, error) {
	return c.repo.List(ctx, filter)
}

// GetLocation returns a stored location by ID.
func (c *LocationCatalog) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	return c.repo.Get(ctx, id)
}

// LocationCount returns the number of stored locations.
func (c *LocationCatalog) LocationCount(ctx context.Context) (int, error) {
	return c.repo.Count(ctx)
}

func (c *LocationCatalog) updateMetrics(ctx context.Context) {
	c.metrics.SetSourcesLoaded(c.SourceCount())
	if n, err := c.repo.Count(ctx); err == nil {
		c.metrics.SetLocationsLoaded(n)
	}
}
