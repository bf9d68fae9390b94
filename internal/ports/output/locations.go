package output

import (
	"context"

	"github.com/jobrunner/mandor/internal/domain"
)

// LocationRepository defines the secondary port for location persistence.
type LocationRepository interface {
	// ReplaceSource atomically replaces every location imported from a source.
	ReplaceSource(ctx context.Context, sourceID string, locations []domain.Location) error

	// DeleteSource removes every location imported from a source.
	DeleteSource(ctx context.Context, sourceID string) error

	// Get returns a location by ID.
	Get(ctx context.Context, id string) (*domain.Location, error)

	// List returns the locations matching the filter, ordered by ID.
	List(ctx context.Context, filter domain.LocationFilter) ([]domain.Location, error)

	// Count returns the number of stored locations.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying store.
	Close() error
}

// ExportDecoder defines the secondary port for reading location export files.
type ExportDecoder interface {
	// Decode reads the export file at path and returns its locations.
	Decode(ctx context.Context, path string) ([]domain.Location, error)

	// Supports returns true if the decoder can read the given file name.
	Supports(name string) bool
}
