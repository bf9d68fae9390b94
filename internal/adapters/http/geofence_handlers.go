package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/mandor/internal/adapters/geoformat"
	"github.com/jobrunner/mandor/internal/domain"
)

// maxNormalizeBody limits the size of a normalize request body.
const maxNormalizeBody = 1 << 20

// GeofenceResponse is the JSON representation of a geofence.
type GeofenceResponse struct {
	LocationID     string            `json:"location_id,omitempty"`
	LocationName   string            `json:"location_name,omitempty"`
	Points         []domain.GeoPoint `json:"points"`
	Center         domain.GeoPoint   `json:"center"`
	CenterFallback bool              `json:"center_fallback"`
	Bounds         *domain.Extent    `json:"bounds,omitempty"`
	Shape          domain.Shape      `json:"shape"`
	Dropped        int               `json:"dropped"`
	PointCount     int               `json:"point_count"`
	Polyline       string            `json:"polyline"`
}

// NewGeofenceResponse converts a geofence to its JSON representation.
func NewGeofenceResponse(g *domain.Geofence) GeofenceResponse {
	points := []domain.GeoPoint(g.Points)
	if points == nil {
		points = []domain.GeoPoint{}
	}
	return GeofenceResponse{
		LocationID:     g.LocationID,
		LocationName:   g.LocationName,
		Points:         points,
		Center:         g.Center,
		CenterFallback: g.CenterFallback,
		Bounds:         g.Extent,
		Shape:          g.Shape,
		Dropped:        g.Dropped,
		PointCount:     len(points),
		Polyline:       geoformat.EncodePolyline(g.Points),
	}
}

// handleListLocations returns the locations matching the query filter.
func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.catalog.ListLocations(r.Context(), parseFilter(r.URL.Query()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	response := make([]map[string]interface{}, len(locations))
	for i := range locations {
		response[i] = formatLocation(&locations[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"locations": response,
		"count":     len(locations),
	})
}

// handleGetLocation returns a location with its raw coordinates.
func (s *Server) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := s.catalog.GetLocation(r.Context(), mux.Vars(r)["locationId"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, formatLocation(loc))
}

// handleGeofence returns the normalized geofence of a location as JSON or
// KML.
func (s *Server) handleGeofence(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "kml" {
		s.writeError(w, http.StatusBadRequest, "format must be json or kml")
		return
	}

	g, err := s.geofences.Geofence(r.Context(), mux.Vars(r)["locationId"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if format == "kml" {
		w.Header().Set("Content-Type", geoformat.ContentTypeKML)
		if err := geoformat.WriteKML(w, g); err != nil {
			s.logger.Error("failed to write KML", "location", g.LocationID, "error", err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, NewGeofenceResponse(g))
}

// handleContains reports whether a point lies inside a location's geofence.
func (s *Server) handleContains(w http.ResponseWriter, r *http.Request) {
	point, err := parsePoint(r.URL.Query())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	locationID := mux.Vars(r)["locationId"]
	inside, err := s.geofences.Contains(r.Context(), locationID, point)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"location_id": locationID,
		"point":       point,
		"inside":      inside,
	})
}

// handleLocate returns the locations whose geofence contains the point.
func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	point, err := parsePoint(q)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	start := time.Now()
	locations, err := s.geofences.Locate(r.Context(), point, parseFilter(q))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	response := make([]map[string]interface{}, len(locations))
	for i := range locations {
		response[i] = formatLocation(&locations[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"point":              point,
		"locations":          response,
		"count":              len(locations),
		"processing_time_ms": time.Since(start).Milliseconds(),
	})
}

// handleNormalize normalizes the posted raw coordinates value.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var body any

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNormalizeBody))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			s.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			s.writeError(w, http.StatusBadRequest, "Request body is empty")
		default:
			s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		}
		return
	}

	g := s.geofences.Normalize(r.Context(), normalizePayload(body))
	s.writeJSON(w, http.StatusOK, NewGeofenceResponse(&g))
}

// normalizePayload unwraps {"coordinates": ...}. Any other JSON value is the
// raw coordinates itself.
func normalizePayload(body any) any {
	if obj, ok := body.(map[string]any); ok {
		return obj["coordinates"]
	}
	return body
}

func formatLocation(loc *domain.Location) map[string]interface{} {
	m := map[string]interface{}{
		"id":          loc.ID,
		"code":        loc.Code,
		"name":        loc.Name,
		"pg":          loc.PlantationGroup,
		"wilayah":     loc.Wilayah,
		"address":     loc.Address,
		"coordinates": loc.Coordinates,
		"source":      loc.Source,
	}
	if !loc.UpdatedAt.IsZero() {
		m["updated_at"] = loc.UpdatedAt
	}
	return m
}

func parseFilter(q url.Values) domain.LocationFilter {
	return domain.LocationFilter{
		PlantationGroup: q.Get("pg"),
		Wilayah:         q.Get("wilayah"),
		Source:          q.Get("source"),
	}
}

// parsePoint reads the required lat and lng query parameters. Range checks
// are left to the services.
func parsePoint(q url.Values) (domain.GeoPoint, error) {
	lat, err := parseCoordinate(q, "lat")
	if err != nil {
		return domain.GeoPoint{}, err
	}
	lng, err := parseCoordinate(q, "lng")
	if err != nil {
		return domain.GeoPoint{}, err
	}
	return domain.NewGeoPoint(lat, lng), nil
}

func parseCoordinate(q url.Values, name string) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, &domain.ValidationError{
			Field:      name,
			Constraint: "required",
			Message:    name + " parameter is required",
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &domain.ValidationError{
			Field:      name,
			Value:      raw,
			Constraint: "number",
			Message:    "invalid " + name + " parameter",
		}
	}
	return v, nil
}
