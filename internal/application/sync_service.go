package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRateLimited is returned when a manual sync is requested during the
// cooldown.
var ErrRateLimited = errors.New("rate limit exceeded")

// SyncCooldown is the minimum time between two manual syncs.
const SyncCooldown = 30 * time.Second

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	SourcesAdded    int       `json:"sources_added"`
	SourcesUpdated  int       `json:"sources_updated"`
	SourcesRemoved  int       `json:"sources_removed"`
	SourcesTotal    int       `json:"sources_total"`
	SyncedAt        time.Time `json:"synced_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// SyncService runs periodic catalog syncs and rate limited manual ones.
type SyncService struct {
	catalog  *LocationCatalog
	interval time.Duration
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Guards lastTrigger.
	triggerMu   sync.Mutex
	lastTrigger time.Time

	// Serializes sync runs.
	runMu sync.Mutex

	nextMu   sync.RWMutex
	nextSync time.Time
}

// NewSyncService creates a new sync service.
func NewSyncService(catalog *LocationCatalog, interval time.Duration, logger *slog.Logger) *SyncService {
	return &SyncService{
		catalog:  catalog,
		interval: interval,
		cooldown: SyncCooldown,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sync scheduler.
func (s *SyncService) Start(ctx context.Context) {
	s.logger.Info("starting sync service", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextSync(s.now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled sync triggered")
			if _, err := s.sync(ctx); err != nil {
				s.logger.Error("scheduled sync failed", "error", err)
			}
			s.setNextSync(s.now().Add(s.interval))
		}
	}
}

// Stop stops the scheduler and waits for a running sync to finish. It is
// safe to call more than once.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sync service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerSync runs a sync now unless one was triggered within the cooldown.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.triggerMu.Lock()
	now := s.now()
	if !s.lastTrigger.IsZero() && now.Sub(s.lastTrigger) < s.cooldown {
		s.triggerMu.Unlock()
		return SyncResult{}, ErrRateLimited
	}
	s.lastTrigger = now
	s.triggerMu.Unlock()

	return s.sync(ctx)
}

// RetryAfter returns how long a caller must wait before the next manual
// sync is accepted.
func (s *SyncService) RetryAfter() time.Duration {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()

	if s.lastTrigger.IsZero() {
		return 0
	}
	if wait := s.cooldown - s.now().Sub(s.lastTrigger); wait > 0 {
		return wait
	}
	return 0
}

func (s *SyncService) sync(ctx context.Context) (SyncResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	stats, err := s.catalog.Sync(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	return SyncResult{
		SourcesAdded:    stats.Added,
		SourcesUpdated:  stats.Updated,
		SourcesRemoved:  stats.Removed,
		SourcesTotal:    s.catalog.SourceCount(),
		SyncedAt:        s.now(),
		NextScheduledAt: s.getNextSync(),
	}, nil
}

func (s *SyncService) setNextSync(t time.Time) {
	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	s.nextSync = t
}

func (s *SyncService) getNextSync() time.Time {
	s.nextMu.RLock()
	defer s.nextMu.RUnlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}
