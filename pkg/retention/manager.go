// Package retention enforces the suggestion cache retention policy.
//
// Two independent rules apply: entries older than the TTL are deleted, and
// rods holding more than the per-rod cap lose their oldest entries. A
// Manager applies them on demand or from a background ticker whose period
// follows the live configuration.
package retention

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soilsense/soilsense/pkg/models"
	"github.com/soilsense/soilsense/pkg/store"
)

// TopRods is the number of rods listed in CacheStats.
const TopRods = 20

// ErrInvalidConfig is returned when a policy cannot be applied.
var ErrInvalidConfig = errors.New("invalid cleanup config")

// Recorder receives cleanup failures. *monitor.Monitor implements it.
type Recorder interface {
	RecordDBError(msg, rodID, readingID string)
	RecordCacheError(msg, rodID, readingID string)
}

// Manager owns the retention policy and the auto-cleanup ticker.
type Manager struct {
	store    store.Store
	recorder Recorder
	logger   *zap.Logger
	known    []string

	// life serializes Start, Stop and Configure; mu guards the fields below it.
	life        sync.Mutex
	mu          sync.Mutex
	cfg         models.CleanupConfig
	lastCleanup time.Time
	done        chan struct{}
	wg          sync.WaitGroup

	now func() time.Time
}

// New creates a stopped Manager. Model tags in knownModels are reported
// with explicit zero counts by CacheStats.
func New(st store.Store, rec Recorder, cfg models.CleanupConfig, logger *zap.Logger, knownModels ...string) (*Manager, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:    st,
		recorder: rec,
		logger:   logger.Named("retention"),
		known:    knownModels,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

func validate(c models.CleanupConfig) error {
	switch {
	case math.IsNaN(c.SuggestionTTLHours) || c.SuggestionTTLHours < 0:
		return fmt.Errorf("%w: suggestionTtlHours must not be negative", ErrInvalidConfig)
	case c.MaxSuggestionsPerRod < 0:
		return fmt.Errorf("%w: maxSuggestionsPerRod must not be negative", ErrInvalidConfig)
	case math.IsNaN(c.CleanupIntervalHours) || c.Interval() <= 0:
		return fmt.Errorf("%w: cleanupIntervalHours must be positive", ErrInvalidConfig)
	}
	return nil
}

// Config returns a copy of the live policy.
func (m *Manager) Config() models.CleanupConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Configure merges patch into the live policy. A running ticker is
// restarted so a new interval takes effect immediately.
func (m *Manager) Configure(patch models.CleanupPatch) error {
	m.life.Lock()
	defer m.life.Unlock()

	m.mu.Lock()
	next := patch.Apply(m.cfg)
	if err := validate(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = next
	running := m.done != nil
	m.mu.Unlock()

	if running {
		m.stop()
		m.start()
	}
	return nil
}

// Start arms the auto-cleanup ticker, restarting it when already running.
func (m *Manager) Start() {
	m.life.Lock()
	defer m.life.Unlock()
	m.stop()
	m.start()
}

// Stop disarms the ticker and waits for an in-flight run. It is a no-op
// when stopped.
func (m *Manager) Stop() {
	m.life.Lock()
	defer m.life.Unlock()
	m.stop()
}

// Running reports whether the ticker is armed.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done != nil
}

// start and stop require life to be held.
func (m *Manager) start() {
	m.mu.Lock()
	done := make(chan struct{})
	m.done = done
	cfg := m.cfg
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(done, cfg.Interval())

	if cfg.EnableLogging {
		m.logger.Info("auto cleanup started", zap.Float64("interval_hours", cfg.CleanupIntervalHours))
	}
}

func (m *Manager) stop() {
	m.mu.Lock()
	done := m.done
	m.done = nil
	logging := m.cfg.EnableLogging
	m.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	m.wg.Wait()

	if logging {
		m.logger.Info("auto cleanup stopped")
	}
}

func (m *Manager) loop(done <-chan struct{}, interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.autoCleanup()
		}
	}
}

// autoCleanup keeps the ticker alive across failed runs.
func (m *Manager) autoCleanup() {
	stats, err := m.RunCleanup(context.Background())
	if err != nil {
		m.logger.Error("auto cleanup failed", zap.Error(err))
		m.recorder.RecordCacheError("Auto cleanup failed: "+err.Error(), "", "")
		return
	}
	if m.Config().EnableLogging {
		m.logger.Info("auto cleanup completed", statsFields(stats)...)
	}
}

func statsFields(s models.CleanupStats) []zap.Field {
	return []zap.Field{
		zap.Int64("expired", s.ExpiredSuggestions),
		zap.Int64("excess", s.ExcessSuggestions),
		zap.Int64("total_deleted", s.TotalDeleted),
		zap.Int64("duration_ms", s.CleanupDurationMs),
	}
}

// RunCleanup deletes expired entries, then trims every rod above the cap
// oldest first. A failure aborts the run, is recorded as a database error,
// and is returned.
func (m *Manager) RunCleanup(ctx context.Context) (models.CleanupStats, error) {
	cfg := m.Config()
	start := m.now()

	expired, err := m.store.DeleteOlderThan(ctx, start.Add(-cfg.TTL()))
	if err != nil {
		return models.CleanupStats{}, m.cleanupFailed("Cache cleanup failed", "", err)
	}

	var excess int64
	if cfg.MaxSuggestionsPerRod > 0 {
		limit := int64(cfg.MaxSuggestionsPerRod)
		over, err := m.store.GroupCountsByRod(ctx, limit)
		if err != nil {
			return models.CleanupStats{}, m.cleanupFailed("Cache cleanup failed", "", err)
		}
		for _, rc := range over {
			n, err := m.deleteOldest(ctx, rc.RodID, rc.Count-limit)
			if err != nil {
				return models.CleanupStats{}, m.cleanupFailed("Cache cleanup failed", "", err)
			}
			excess += n
		}
	}

	end := m.now()
	m.mu.Lock()
	m.lastCleanup = end
	m.mu.Unlock()

	stats := models.CleanupStats{
		ExpiredSuggestions: expired,
		ExcessSuggestions:  excess,
		TotalDeleted:       expired + excess,
		CleanupDurationMs:  end.Sub(start).Milliseconds(),
		Timestamp:          end,
	}
	if cfg.EnableLogging && stats.TotalDeleted > 0 {
		m.logger.Info("cache cleanup completed", statsFields(stats)...)
	}
	return stats, nil
}

func (m *Manager) deleteOldest(ctx context.Context, rodID string, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	oldest, err := m.store.OldestForRod(ctx, rodID, int(n))
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(oldest))
	for _, e := range oldest {
		ids = append(ids, e.ID)
	}
	return m.store.DeleteByIDs(ctx, ids)
}

func (m *Manager) cleanupFailed(tag, rodID string, err error) error {
	m.recorder.RecordDBError(tag+": "+err.Error(), rodID, "")
	return fmt.Errorf("%s: %w", strings.ToLower(tag), err)
}

// CleanupRod trims one rod to its keep newest entries and returns the number
// deleted. A negative keep uses the configured per-rod cap.
func (m *Manager) CleanupRod(ctx context.Context, rodID string, keep int) (int64, error) {
	cfg := m.Config()
	if keep < 0 {
		keep = cfg.MaxSuggestionsPerRod
	}

	total, err := m.store.CountByRod(ctx, rodID)
	if err != nil {
		return 0, m.cleanupFailed("Rod cleanup failed", rodID, err)
	}
	if total <= int64(keep) {
		return 0, nil
	}

	n, err := m.deleteOldest(ctx, rodID, total-int64(keep))
	if err != nil {
		return 0, m.cleanupFailed("Rod cleanup failed", rodID, err)
	}
	if cfg.EnableLogging && n > 0 {
		m.logger.Info("rod cleanup completed", zap.String("rod_id", rodID), zap.Int64("deleted", n))
	}
	return n, nil
}

// ClearAll deletes every entry by running a cleanup with a zero TTL and no
// cap, then restores the previous policy, also when the run fails.
func (m *Manager) ClearAll(ctx context.Context) (stats models.CleanupStats, err error) {
	saved := m.Config()

	zeroTTL, noCap := 0.0, 0
	if err := m.Configure(models.CleanupPatch{SuggestionTTLHours: &zeroTTL, MaxSuggestionsPerRod: &noCap}); err != nil {
		return models.CleanupStats{}, err
	}
	defer func() {
		if rerr := m.Configure(models.PatchFrom(saved)); rerr != nil && err == nil {
			err = fmt.Errorf("restore cleanup config: %w", rerr)
		}
	}()

	return m.RunCleanup(ctx)
}

// IsStale reports whether createdAt is older than the TTL.
func (m *Manager) IsStale(createdAt time.Time) bool {
	return createdAt.Before(m.now().Add(-m.Config().TTL()))
}

// Status returns a snapshot of the ticker state and policy.
func (m *Manager) Status() models.CleanupStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, next := m.cleanupTimes()
	return models.CleanupStatus{
		IsAutoCleanupRunning: m.done != nil,
		Config:               m.cfg,
		LastCleanup:          last,
		NextCleanup:          next,
	}
}

// cleanupTimes requires mu. next is set only while running after a completed run.
func (m *Manager) cleanupTimes() (last, next *time.Time) {
	if m.lastCleanup.IsZero() {
		return nil, nil
	}
	l := m.lastCleanup
	last = &l
	if m.done != nil {
		n := l.Add(m.cfg.Interval())
		next = &n
	}
	return last, next
}

// CacheStats reports entry counts by model, age and rod.
func (m *Manager) CacheStats(ctx context.Context) (models.CacheStats, error) {
	cutoff := m.now().Add(-m.Config().TTL())

	var (
		total, stale int64
		byModel      map[string]int64
		byRod        []models.RodCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = m.store.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stale, err = m.store.CountOlderThan(gctx, cutoff)
		return err
	})
	g.Go(func() (err error) {
		byModel, err = m.store.CountByModel(gctx)
		return err
	})
	g.Go(func() (err error) {
		byRod, err = m.store.TopRodsByCount(gctx, TopRods)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}

	for _, k := range m.known {
		if _, ok := byModel[k]; !ok {
			byModel[k] = 0
		}
	}
	if byRod == nil {
		byRod = []models.RodCount{}
	}

	m.mu.Lock()
	last, next := m.cleanupTimes()
	m.mu.Unlock()

	return models.CacheStats{
		TotalSuggestions:   total,
		SuggestionsByModel: byModel,
		SuggestionsByAge:   models.AgeSplit{Fresh: total - stale, Stale: stale},
		SuggestionsByRod:   byRod,
		LastCleanup:        last,
		NextCleanup:        next,
	}, nil
}
