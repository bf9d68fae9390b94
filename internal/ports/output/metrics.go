package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncGeofenceRequests increments the geofence lookup counter.
	IncGeofenceRequests(operation string, success bool)

	// ObserveGeofenceDuration records geofence lookup duration.
	ObserveGeofenceDuration(operation string, duration time.Duration)

	// IncNormalizations counts normalizations by detected input shape.
	IncNormalizations(shape string, dropped int)

	// IncCacheLookups counts geofence cache hits and misses.
	IncCacheLookups(hit bool)

	// SetSourcesLoaded sets the number of registered export sources.
	SetSourcesLoaded(count int)

	// SetLocationsLoaded sets the number of stored locations.
	SetLocationsLoaded(count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncGeofenceRequests implements MetricsCollector.
func (n *NoOpMetrics) IncGeofenceRequests(_ string, _ bool) {}

// ObserveGeofenceDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveGeofenceDuration(_ string, _ time.Duration) {}

// IncNormalizations implements MetricsCollector.
func (n *NoOpMetrics) IncNormalizations(_ string, _ int) {}

// IncCacheLookups implements MetricsCollector.
func (n *NoOpMetrics) IncCacheLookups(_ bool) {}

// SetSourcesLoaded implements MetricsCollector.
func (n *NoOpMetrics) SetSourcesLoaded(_ int) {}

// SetLocationsLoaded implements MetricsCollector.
func (n *NoOpMetrics) SetLocationsLoaded(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
