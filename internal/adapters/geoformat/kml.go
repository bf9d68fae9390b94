package geoformat

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml"

	"github.com/jobrunner/mandor/internal/domain"
)

// ContentTypeKML is the media type of KML documents.
const ContentTypeKML = "application/vnd.google-earth.kml+xml"

// WriteKML writes the geofence as a KML document: one placemark for the
// polygon ring (omitted when there are fewer than three points) and one for
// the center.
func WriteKML(w io.Writer, g *domain.Geofence) error {
	name := g.LocationName
	if name == "" {
		name = g.LocationID
	}

	var children []kml.Element
	children = append(children, kml.Name(name))

	if len(g.Points) >= 3 {
		children = append(children, kml.Placemark(
			kml.Name(name),
			kml.Description(fmt.Sprintf("%d points, shape %s", len(g.Points), g.Shape)),
			kml.Polygon(
				kml.OuterBoundaryIs(
					kml.LinearRing(
						kml.Coordinates(ring(g.Points)...),
					),
				),
			),
		))
	}

	centerName := "center"
	if g.CenterFallback {
		centerName = "center (default)"
	}
	children = append(children, kml.Placemark(
		kml.Name(centerName),
		kml.Point(
			kml.Coordinates(kml.Coordinate{Lon: g.Center.Lng, Lat: g.Center.Lat}),
		),
	))

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

// ring converts the points to a closed KML coordinate ring.
func ring(points domain.Polygon) []kml.Coordinate {
	closed := points.Closed()
	coords := make([]kml.Coordinate, len(closed))
	for i, p := range closed {
		coords[i] = kml.Coordinate{Lon: p.Lng, Lat: p.Lat}
	}
	return coords
}
