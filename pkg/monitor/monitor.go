// Package monitor records suggestion cache lookups and errors in process.
//
// A Monitor keeps running aggregates plus a bounded event log. It is safe
// for concurrent use and doubles as a prometheus.Collector.
package monitor

import (
	"sync"
	"time"

	"github.com/soilsense/soilsense/pkg/models"
)

// DefaultMaxEvents bounds the event log when New is given a non-positive size.
const DefaultMaxEvents = 1000

// DefaultRecentEvents is the page size used when GetRecentEvents gets no limit.
const DefaultRecentEvents = 50

// Monitor aggregates cache performance since the last reset.
type Monitor struct {
	mu      sync.Mutex
	metrics models.CacheMetrics
	buf     []models.PerformanceEvent
	head    int
	n       int
	known   []string
	now     func() time.Time
}

// New creates a Monitor keeping at most maxEvents events. Model tags in
// knownModels always appear in ModelTypeStats, with zero counts when unused.
func New(maxEvents int, knownModels ...string) *Monitor {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	m := &Monitor{
		buf:   make([]models.PerformanceEvent, maxEvents),
		known: knownModels,
		now:   time.Now,
	}
	m.reset()
	return m
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordCacheHit records a lookup served from the store.
func (m *Monitor) RecordCacheHit(latency time.Duration, model, rodID, readingID string) {
	m.recordLookup(models.EventCacheHit, latency, model, rodID, readingID)
}

// RecordCacheMiss records a lookup that generated a new suggestion.
func (m *Monitor) RecordCacheMiss(latency time.Duration, model, rodID, readingID string) {
	m.recordLookup(models.EventCacheMiss, latency, model, rodID, readingID)
}

func (m *Monitor) recordLookup(typ models.EventType, latency time.Duration, model, rodID, readingID string) {
	ms := millis(latency)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.add(models.PerformanceEvent{
		Timestamp:      m.now(),
		Type:           typ,
		ResponseTimeMs: &ms,
		Model:          model,
		RodID:          rodID,
		ReadingID:      readingID,
	})

	mt := &m.metrics
	mt.TotalRequests++
	if typ == models.EventCacheHit {
		mt.CacheHits++
	} else {
		mt.CacheMisses++
	}
	mt.TotalResponseTime += ms
	mt.AverageResponseTime = mt.TotalResponseTime / float64(mt.TotalRequests)
	mt.HitRate = float64(mt.CacheHits) / float64(mt.TotalRequests)
	mt.ModelTypeStats[model]++
}

// RecordAIError records a failure of the advisory backend.
func (m *Monitor) RecordAIError(latency time.Duration, msg, rodID, readingID string) {
	ms := millis(latency)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.add(models.PerformanceEvent{
		Timestamp:      m.now(),
		Type:           models.EventAIError,
		ResponseTimeMs: &ms,
		RodID:          rodID,
		ReadingID:      readingID,
		ErrorMessage:   msg,
	})
	m.metrics.ErrorStats.AIErrors++
}

// RecordCacheError records a failure inside the cache layer itself.
func (m *Monitor) RecordCacheError(msg, rodID, readingID string) {
	m.recordError(models.EventCacheError, msg, rodID, readingID)
}

// RecordDBError records a persistence failure.
func (m *Monitor) RecordDBError(msg, rodID, readingID string) {
	m.recordError(models.EventDBError, msg, rodID, readingID)
}

func (m *Monitor) recordError(typ models.EventType, msg, rodID, readingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.add(models.PerformanceEvent{
		Timestamp:    m.now(),
		Type:         typ,
		RodID:        rodID,
		ReadingID:    readingID,
		ErrorMessage: msg,
	})
	if typ == models.EventDBError {
		m.metrics.ErrorStats.DBErrors++
	} else {
		m.metrics.ErrorStats.CacheErrors++
	}
}

// add appends e, overwriting the oldest event when the log is full. Callers hold mu.
func (m *Monitor) add(e models.PerformanceEvent) {
	size := len(m.buf)
	if m.n < size {
		m.buf[(m.head+m.n)%size] = e
		m.n++
		return
	}
	m.buf[m.head] = e
	m.head = (m.head + 1) % size
}

// at returns the i-th oldest event. Callers hold mu.
func (m *Monitor) at(i int) models.PerformanceEvent {
	return m.buf[(m.head+i)%len(m.buf)]
}

// GetMetrics returns a copy of the current aggregates.
func (m *Monitor) GetMetrics() models.CacheMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Monitor) snapshot() models.CacheMetrics {
	out := m.metrics
	out.ModelTypeStats = make(map[string]int64, len(m.metrics.ModelTypeStats))
	for k, v := range m.metrics.ModelTypeStats {
		out.ModelTypeStats[k] = v
	}
	return out
}

// GetRecentEvents returns up to limit events, newest first.
func (m *Monitor) GetRecentEvents(limit int) []models.PerformanceEvent {
	if limit <= 0 {
		limit = DefaultRecentEvents
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limit > m.n {
		limit = m.n
	}
	out := make([]models.PerformanceEvent, 0, limit)
	for i := m.n - 1; i >= m.n-limit; i-- {
		out = append(out, m.at(i))
	}
	return out
}

// GetEventsInRange returns events with start <= timestamp <= end, oldest first.
func (m *Monitor) GetEventsInRange(start, end time.Time) []models.PerformanceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PerformanceEvent
	for i := 0; i < m.n; i++ {
		e := m.at(i)
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// GetRodMetrics computes hit/miss counts from the logged events of one rod.
func (m *Monitor) GetRodMetrics(rodID string) models.RodMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rm models.RodMetrics
	for i := 0; i < m.n; i++ {
		e := m.at(i)
		if e.RodID != rodID {
			continue
		}
		switch e.Type {
		case models.EventCacheHit:
			rm.Hits++
		case models.EventCacheMiss:
			rm.Misses++
		}
	}
	if total := rm.Hits + rm.Misses; total > 0 {
		rm.HitRate = float64(rm.Hits) / float64(total)
	}
	return rm
}

// ResetMetrics clears the aggregates and the event log together.
func (m *Monitor) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *Monitor) reset() {
	stats := make(map[string]int64, len(m.known))
	for _, k := range m.known {
		stats[k] = 0
	}
	m.metrics = models.CacheMetrics{
		LastReset:      m.now(),
		ModelTypeStats: stats,
	}
	clear(m.buf)
	m.head = 0
	m.n = 0
}

// Len returns the number of logged events.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}
