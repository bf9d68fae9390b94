package geoformat

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"github.com/jobrunner/mandor/internal/domain"
)

func TestEncodePolyline(t *testing.T) {
	// Reference example from the encoded polyline algorithm documentation.
	points := domain.Polygon{
		{Lat: 38.5, Lng: -120.2},
		{Lat: 40.7, Lng: -120.95},
		{Lat: 43.252, Lng: -126.453},
	}

	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", EncodePolyline(points))
	assert.Equal(t, "", EncodePolyline(domain.Polygon{}))
	assert.Equal(t, "", EncodePolyline(nil))
}

func TestPolylineRoundTrip(t *testing.T) {
	points := domain.NormalizeCoordinates("105.1,-4.2,105.3,-4.9,104.8,-4.5")
	require.Len(t, points, 3)

	decoded, rest, err := polyline.DecodeCoords([]byte(EncodePolyline(points)))
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, decoded, len(points))

	for i := range points {
		assert.InDelta(t, points[i].Lat, decoded[i][0], 1e-5, "lat of point %d", i)
		assert.InDelta(t, points[i].Lng, decoded[i][1], 1e-5, "lng of point %d", i)
	}
}

func TestWriteKML(t *testing.T) {
	g := domain.NewGeofence(domain.Normalize("105,-4,106,-4,106,-5"), domain.GeoPoint{})
	g.LocationID = "101"
	g.LocationName = "Kebun Way Lima"

	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, &g))

	out := buf.String()
	assert.Contains(t, out, "<kml")
	assert.Contains(t, out, "<name>Kebun Way Lima</name>")
	assert.Contains(t, out, "<Polygon>")
	assert.Contains(t, out, "<LinearRing>")
	assert.NotContains(t, out, "center (default)")

	// The ring is closed, so the first vertex appears twice.
	assert.Equal(t, 2, strings.Count(out, "105,-4"))
}

func TestWriteKMLEmptyUsesFallbackCenter(t *testing.T) {
	g := domain.NewGeofence(domain.Normalize(nil), domain.GeoPoint{Lat: -2.5489, Lng: 118.0149})
	g.LocationID = "7"

	var buf bytes.Buffer
	require.NoError(t, WriteKML(&buf, &g))

	out := buf.String()
	assert.NotContains(t, out, "<Polygon>")
	assert.Contains(t, out, "<name>7</name>")
	assert.Contains(t, out, "center (default)")
	assert.Contains(t, out, "118.0149,-2.5489")
}
