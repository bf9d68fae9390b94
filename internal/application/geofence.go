package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jobrunner/mandor/internal/domain"
	"github.com/jobrunner/mandor/internal/ports/input"
	"github.com/jobrunner/mandor/internal/ports/output"
)

// DefaultCenter is the map center used when a geofence has no points: the
// geographic center of Indonesia.
var DefaultCenter = domain.GeoPoint{Lat: -2.5489, Lng: 118.0149}

// GeofenceConfig holds configuration for the geofence service.
type GeofenceConfig struct {
	DefaultCenter   domain.GeoPoint
	CacheTTL        time.Duration
	CleanupInterval time.Duration
}

// GeofenceService derives normalized geofences from stored locations.
// Derived geofences are cached per location and flushed whenever the
// catalog changes.
type GeofenceService struct {
	catalog  *LocationCatalog
	cache    *cache.Cache
	metrics  output.MetricsCollector
	logger   *slog.Logger
	fallback domain.GeoPoint

	// generation counts catalog changes. A geofence derived from a location
	// read in an older generation is not cached.
	mu         sync.Mutex
	generation uint64
}

var _ input.GeofenceService = (*GeofenceService)(nil)

// NewGeofenceService creates a new geofence service.
func NewGeofenceService(
	catalog *LocationCatalog,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg GeofenceConfig,
) *GeofenceService {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	s := &GeofenceService{
		catalog:  catalog,
		cache:    cache.New(cfg.CacheTTL, cfg.CleanupInterval),
		metrics:  metrics,
		logger:   logger,
		fallback: cfg.DefaultCenter,
	}

	catalog.OnChange(func(sourceID string) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.logger.Debug("flushing geofence cache", "source", sourceID, "entries", s.cache.ItemCount())
		s.generation++
		s.cache.Flush()
	})
	return s
}

// DefaultCenter returns the configured fallback center.
func (s *GeofenceService) DefaultCenter() domain.GeoPoint {
	return s.fallback
}

// Geofence returns the normalized geofence of a location.
func (s *GeofenceService) Geofence(ctx context.Context, locationID string) (*domain.Geofence, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveGeofenceDuration("geofence", time.Since(start)) }()

	if g, ok := s.cached(locationID); ok {
		s.metrics.IncGeofenceRequests("geofence", true)
		return g, nil
	}

	gen := s.currentGeneration()
	loc, err := s.catalog.GetLocation(ctx, locationID)
	if err != nil {
		s.metrics.IncGeofenceRequests("geofence", false)
		return nil, err
	}

	g := s.derive(loc, gen)
	s.metrics.IncGeofenceRequests("geofence", true)
	return &g, nil
}

// Normalize normalizes an arbitrary raw value with the same fallback policy
// as stored locations.
func (s *GeofenceService) Normalize(_ context.Context, raw any) domain.Geofence {
	start := time.Now()
	n := domain.Normalize(raw)
	s.metrics.IncNormalizations(string(n.Shape), n.Dropped)
	s.metrics.ObserveGeofenceDuration("normalize", time.Since(start))
	s.metrics.IncGeofenceRequests("normalize", true)

	return domain.NewGeofence(n, s.fallback)
}

// Contains reports whether a point lies inside a location's geofence.
func (s *GeofenceService) Contains(ctx context.Context, locationID string, point domain.GeoPoint) (bool, error) {
	if err := point.Validate(); err != nil {
		s.metrics.IncGeofenceRequests("contains", false)
		return false, err
	}

	g, err := s.Geofence(ctx, locationID)
	if err != nil {
		s.metrics.IncGeofenceRequests("contains", false)
		return false, err
	}

	s.metrics.IncGeofenceRequests("contains", true)
	return g.Contains(point), nil
}

// Locate returns the locations matching filter whose geofence contains the
// point, ordered by ID.
func (s *GeofenceService) Locate(ctx context.Context, point domain.GeoPoint, filter domain.LocationFilter) ([]domain.Location, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveGeofenceDuration("locate", time.Since(start)) }()

	if err := point.Validate(); err != nil {
		s.metrics.IncGeofenceRequests("locate", false)
		return nil, err
	}

	gen := s.currentGeneration()
	locations, err := s.catalog.ListLocations(ctx, filter)
	if err != nil {
		s.metrics.IncGeofenceRequests("locate", false)
		return nil, err
	}

	matches := []domain.Location{}
	for i := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g, ok := s.cached(locations[i].ID)
		if !ok {
			derived := s.derive(&locations[i], gen)
			g = &derived
		}
		if g.Contains(point) {
			matches = append(matches, locations[i])
		}
	}

	s.metrics.IncGeofenceRequests("locate", true)
	s.logger.Debug("locate", "point", point.String(), "candidates", len(locations), "matches", len(matches))
	return matches, nil
}

// ListLocations returns the locations matching the filter.
func (s *GeofenceService) ListLocations(ctx context.Context, filter domain.LocationFilter) ([]domain.Location, error) {
	return s.catalog.ListLocations(ctx, filter)
}

// GetLocation returns a location by ID.
func (s *GeofenceService) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	return s.catalog.GetLocation(ctx, id)
}

// cached returns a copy of the cached geofence for a location.
func (s *GeofenceService) cached(locationID string) (*domain.Geofence, bool) {
	v, found := s.cache.Get(cacheKey(locationID))
	s.metrics.IncCacheLookups(found)
	if !found {
		return nil, false
	}
	g := v.(*domain.Geofence).Clone()
	return &g, true
}

func (s *GeofenceService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// derive normalizes a location's coordinates and caches the result when the
// location was read in generation gen.
func (s *GeofenceService) derive(loc *domain.Location, gen uint64) domain.Geofence {
	n := domain.Normalize(loc.Coordinates)
	s.metrics.IncNormalizations(string(n.Shape), n.Dropped)

	if n.Dropped > 0 || n.Shape == domain.ShapeUnrecognized {
		s.logger.Debug("coordinates partially unusable",
			"location", loc.ID,
			"shape", n.Shape,
			"dropped", n.Dropped,
			"points", len(n.Points),
		)
	}

	g := domain.NewGeofence(n, s.fallback)
	g.LocationID = loc.ID
	g.LocationName = loc.Name

	s.store(&g, gen)
	return g
}

func (s *GeofenceService) store(g *domain.Geofence, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	stored := g.Clone()
	s.cache.Set(cacheKey(g.LocationID), &stored, cache.DefaultExpiration)
}

func cacheKey(locationID string) string {
	return "geofence:" + locationID
}
