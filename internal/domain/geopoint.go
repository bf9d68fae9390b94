// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"math"
)

// GeoPoint is a normalized WGS84 position with finite coordinates.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewGeoPoint creates a point from latitude and longitude.
func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Lat: lat, Lng: lng}
}

// IsFinite returns true if neither coordinate is NaN or infinite.
func (p GeoPoint) IsFinite() bool {
	return isFinite(p.Lat) && isFinite(p.Lng)
}

// Validate checks that the point lies within WGS84 bounds.
func (p GeoPoint) Validate() error {
	if !p.IsFinite() {
		return &ValidationError{
			Field:      "coordinate",
			Value:      p,
			Constraint: "finite",
			Message:    "coordinates must be finite numbers",
		}
	}
	if p.Lat < -90 || p.Lat > 90 {
		return &ValidationError{
			Field:      "lat",
			Value:      p.Lat,
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	if p.Lng < -180 || p.Lng > 180 {
		return &ValidationError{
			Field:      "lng",
			Value:      p.Lng,
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
		}
	}
	return nil
}

// String returns a string representation of the point.
func (p GeoPoint) String() string {
	return fmt.Sprintf("(%f, %f)", p.Lat, p.Lng)
}

// Polygon is an ordered ring of points in drawing order. It may be empty.
type Polygon []GeoPoint

// Len returns the number of vertices.
func (p Polygon) Len() int {
	return len(p)
}

// IsEmpty returns true if the polygon has no vertices.
func (p Polygon) IsEmpty() bool {
	return len(p) == 0
}

// Center returns the arithmetic mean of the vertices.
func (p Polygon) Center() (GeoPoint, bool) {
	return ComputeCenter(p)
}

// IsClosed returns true if the first and last vertices are equal.
func (p Polygon) IsClosed() bool {
	if len(p) < 2 {
		return false
	}
	return p[0] == p[len(p)-1]
}

// Closed returns a copy of the ring with the first vertex repeated at the end
// when the ring is open.
func (p Polygon) Closed() Polygon {
	out := make(Polygon, len(p), len(p)+1)
	copy(out, p)
	if len(p) > 0 && !p.IsClosed() {
		out = append(out, p[0])
	}
	return out
}

// Contains reports whether the point lies inside the ring (even-odd rule).
// Rings with fewer than three vertices contain nothing.
func (p Polygon) Contains(pt GeoPoint) bool {
	n := len(p)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := p[i].Lng, p[i].Lat
		xj, yj := p[j].Lng, p[j].Lat

		if (yi > pt.Lat) != (yj > pt.Lat) &&
			pt.Lng < (xj-xi)*(pt.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Extent returns the bounding box of the polygon.
func (p Polygon) Extent() (Extent, bool) {
	if len(p) == 0 {
		return Extent{}, false
	}

	e := Extent{
		MinLat: p[0].Lat,
		MinLng: p[0].Lng,
		MaxLat: p[0].Lat,
		MaxLng: p[0].Lng,
	}
	for _, pt := range p[1:] {
		e.MinLat = math.Min(e.MinLat, pt.Lat)
		e.MinLng = math.Min(e.MinLng, pt.Lng)
		e.MaxLat = math.Max(e.MaxLat, pt.Lat)
		e.MaxLng = math.Max(e.MaxLng, pt.Lng)
	}
	return e, true
}

// ComputeCenter returns the arithmetic mean latitude and longitude of the
// points. The second result is false for an empty input.
//
// This is a flat mean of the vertices, not the area centroid. It is only
// used to position a map viewport.
func ComputeCenter(points []GeoPoint) (GeoPoint, bool) {
	if len(points) == 0 {
		return GeoPoint{}, false
	}

	var sumLat, sumLng float64
	for _, pt := range points {
		sumLat += pt.Lat
		sumLng += pt.Lng
	}

	n := float64(len(points))
	return GeoPoint{Lat: sumLat / n, Lng: sumLng / n}, true
}

// Extent represents a spatial bounding box.
type Extent struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Contains checks if a point is within the extent.
func (e Extent) Contains(p GeoPoint) bool {
	return p.Lat >= e.MinLat && p.Lat <= e.MaxLat && p.Lng >= e.MinLng && p.Lng <= e.MaxLng
}

// Center returns the center of the extent.
func (e Extent) Center() GeoPoint {
	return GeoPoint{
		Lat: (e.MinLat + e.MaxLat) / 2,
		Lng: (e.MinLng + e.MaxLng) / 2,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
