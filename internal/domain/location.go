package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Location is a plantation location record as exported by the backend.
type Location struct {
	ID              string    // Backend identifier
	Code            string    // Location code
	Name            string    // Display name
	PlantationGroup string    // Plantation group (PG)
	Wilayah         string    // Region
	Address         string    // Postal address
	Coordinates     any       // Raw geofence value, shape varies per record
	Source          string    // Export source the record was imported from
	UpdatedAt       time.Time // Backend update time, zero if unknown
}

// HasCoordinates returns true if a raw geofence value is present.
func (l *Location) HasCoordinates() bool {
	switch v := l.Coordinates.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	default:
		return true
	}
}

// LocationFilter narrows a location listing. Empty fields match everything.
type LocationFilter struct {
	PlantationGroup string
	Wilayah         string
	Source          string
}

// Geofence is the normalized geofence of a location, derived on read.
type Geofence struct {
	LocationID     string
	LocationName   string
	Points         Polygon
	Center         GeoPoint
	CenterFallback bool    // Center is the configured default, not the polygon mean
	Extent         *Extent // Nil for empty polygons
	Shape          Shape
	Dropped        int
}

// NewGeofence builds the geofence view for a normalization result. When the
// polygon is empty the fallback is used as center.
func NewGeofence(n Normalization, fallback GeoPoint) Geofence {
	g := Geofence{
		Points:  n.Points,
		Shape:   n.Shape,
		Dropped: n.Dropped,
	}

	if center, ok := ComputeCenter(n.Points); ok {
		g.Center = center
	} else {
		g.Center = fallback
		g.CenterFallback = true
	}

	if extent, ok := n.Points.Extent(); ok {
		g.Extent = &extent
	}
	return g
}

// Clone returns a deep copy that shares no points or extent with g.
func (g *Geofence) Clone() Geofence {
	c := *g
	c.Points = append(Polygon{}, g.Points...)
	if g.Extent != nil {
		extent := *g.Extent
		c.Extent = &extent
	}
	return c
}

// Contains reports whether the point lies inside the geofence polygon.
func (g *Geofence) Contains(p GeoPoint) bool {
	if g.Extent != nil && !g.Extent.Contains(p) {
		return false
	}
	return g.Points.Contains(p)
}

// Source is an imported location export file.
type Source struct {
	ID            string    // Unique identifier (derived from filename)
	Key           string    // Object storage key
	Path          string    // Local file path
	Size          int64     // File size in bytes
	LocationCount int       // Number of imported locations
	Status        SourceStatus
	Error         string    // Last import error, if any
	LoadedAt      time.Time // Import timestamp
}

// IsReady returns true if the source has been imported.
func (s *Source) IsReady() bool {
	return s.Status == StatusReady
}

// SourceStatus represents the import status of an export source.
type SourceStatus string

// Source statuses.
const (
	StatusLoading   SourceStatus = "loading"
	StatusReady     SourceStatus = "ready"
	StatusError     SourceStatus = "error"
	StatusUnloading SourceStatus = "unloading"
)

// DeriveSourceID derives a source ID from an export file path: the file name
// without extension.
func DeriveSourceID(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
