// Package geoformat renders geofences in interchange formats understood by
// map clients.
package geoformat

import (
	"github.com/twpayne/go-polyline"

	"github.com/jobrunner/mandor/internal/domain"
)

// EncodePolyline encodes the points as a Google encoded polyline. An empty
// polygon encodes to the empty string.
func EncodePolyline(points domain.Polygon) string {
	if len(points) == 0 {
		return ""
	}

	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}
