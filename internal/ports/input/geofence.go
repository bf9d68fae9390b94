// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/mandor/internal/domain"
)

// GeofenceService defines the primary port for geofence reads.
type GeofenceService interface {
	// Geofence returns the normalized geofence of a location.
	Geofence(ctx context.Context, locationID string) (*domain.Geofence, error)

	// Normalize normalizes an arbitrary raw coordinates value.
	Normalize(ctx context.Context, raw any) domain.Geofence

	// Contains reports whether a point lies inside a location's geofence.
	Contains(ctx context.Context, locationID string, point domain.GeoPoint) (bool, error)

	// Locate returns the locations whose geofence contains the point.
	Locate(ctx context.Context, point domain.GeoPoint, filter domain.LocationFilter) ([]domain.Location, error)
}

// LocationCatalog defines the primary port for imported locations.
type LocationCatalog interface {
	// ListLocations returns the locations matching the filter.
	ListLocations(ctx context.Context, filter domain.LocationFilter) ([]domain.Location, error)

	// GetLocation returns a location by ID.
	GetLocation(ctx context.Context, id string) (*domain.Location, error)

	// ListSources returns all imported export sources.
	ListSources(ctx context.Context) ([]domain.Source, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy         bool              // Overall health status
	Ready           bool              // Ready to accept requests
	SourcesLoaded   int               // Number of registered export sources
	SourcesReady    int               // Number of imported export sources
	LocationsLoaded int               // Number of stored locations
	Components      map[string]string // Component statuses
}
