package models

import (
	"encoding/json"
	"time"
)

// Model tags recorded against cached suggestions.
const (
	ModelRuleBased = "rule_based"
)

// CacheEntry is one persisted suggestion row. Payload is the encoded
// Suggestion; the store does not interpret it.
type CacheEntry struct {
	ID        int64           `json:"id"`
	ReadingID string          `json:"readingId"`
	RodID     string          `json:"rodId"`
	PlantType string          `json:"plantType"`
	Model     string          `json:"model"`
	Payload   json.RawMessage `json:"suggestion"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CacheEntryDraft is a row to insert. A zero CreatedAt is stamped by the store.
type CacheEntryDraft struct {
	ReadingID string
	RodID     string
	PlantType string
	Model     string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// RodCount is a grouped entry count for one owning rod.
type RodCount struct {
	RodID string `json:"rodId" db:"rod_id"`
	Count int64  `json:"count" db:"cnt"`
}

// AgeSplit counts entries on either side of the TTL cutoff.
type AgeSplit struct {
	Fresh int64 `json:"fresh"`
	Stale int64 `json:"stale"`
}

// CacheStats is the read-only report over the suggestion table.
type CacheStats struct {
	TotalSuggestions   int64            `json:"totalSuggestions"`
	SuggestionsByModel map[string]int64 `json:"suggestionsByModel"`
	SuggestionsByAge   AgeSplit         `json:"suggestionsByAge"`
	SuggestionsByRod   []RodCount       `json:"suggestionsByRod"`
	LastCleanup        *time.Time       `json:"lastCleanup"`
	NextCleanup        *time.Time       `json:"nextCleanup"`
}
