package models

import "time"

// EventType classifies a performance event.
type EventType string

const (
	EventCacheHit   EventType = "cache_hit"
	EventCacheMiss  EventType = "cache_miss"
	EventAIError    EventType = "ai_error"
	EventCacheError EventType = "cache_error"
	EventDBError    EventType = "db_error"
)

// PerformanceEvent is one entry in the monitor's event log.
type PerformanceEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	ResponseTimeMs *float64  `json:"responseTime,omitempty"`
	Model          string    `json:"modelType,omitempty"`
	RodID          string    `json:"rodId,omitempty"`
	ReadingID      string    `json:"readingId,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}

// ErrorStats counts errors by taxonomy bucket.
type ErrorStats struct {
	AIErrors    int64 `json:"aiErrors"`
	CacheErrors int64 `json:"cacheErrors"`
	DBErrors    int64 `json:"dbErrors"`
}

// Total returns the sum of all buckets.
func (e ErrorStats) Total() int64 {
	return e.AIErrors + e.CacheErrors + e.DBErrors
}

// CacheMetrics aggregates cache lookups since the last reset.
type CacheMetrics struct {
	TotalRequests       int64            `json:"totalRequests"`
	CacheHits           int64            `json:"cacheHits"`
	CacheMisses         int64            `json:"cacheMisses"`
	HitRate             float64          `json:"hitRate"`
	AverageResponseTime float64          `json:"averageResponseTime"`
	TotalResponseTime   float64          `json:"totalResponseTime"`
	LastReset           time.Time        `json:"lastReset"`
	ModelTypeStats      map[string]int64 `json:"modelTypeStats"`
	ErrorStats          ErrorStats       `json:"errorStats"`
}

// RodMetrics is the hit/miss breakdown for one rod.
type RodMetrics struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}
