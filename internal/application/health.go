package application

import (
	"context"

	"github.com/jobrunner/mandor/internal/domain"
	"github.com/jobrunner/mandor/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	catalog *LocationCatalog
}

var _ input.HealthChecker = (*HealthService)(nil)

// NewHealthService creates a new health service.
func NewHealthService(catalog *LocationCatalog) *HealthService {
	return &HealthService{catalog: catalog}
}

// IsHealthy returns true if the process is up.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady returns true when no sources are registered or at least one
// source has been imported.
func (s *HealthService) IsReady(_ context.Context) bool {
	return s.catalog.SourceCount() == 0 || s.catalog.ReadySourceCount() > 0
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"catalog": "ok",
	}

	locations, err := s.catalog.LocationCount(ctx)
	if err != nil {
		components["database"] = "error: " + err.Error()
	} else {
		components["database"] = "ok"
	}

	sources, _ := s.catalog.ListSources(ctx)
	for _, src := range sources {
		if src.Status == domain.StatusError {
			components["catalog"] = "degraded"
			break
		}
	}

	return input.HealthDetails{
		Healthy:         s.IsHealthy(ctx),
		Ready:           s.IsReady(ctx),
		SourcesLoaded:   s.catalog.SourceCount(),
		SourcesReady:    s.catalog.ReadySourceCount(),
		LocationsLoaded: locations,
		Components:      components,
	}
}
