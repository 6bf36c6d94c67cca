package models

import "time"

// CleanupConfig is the retention policy applied by the cleanup service.
type CleanupConfig struct {
	SuggestionTTLHours   float64 `json:"suggestionTtlHours" yaml:"suggestion_ttl_hours"`
	MaxSuggestionsPerRod int     `json:"maxSuggestionsPerRod" yaml:"max_suggestions_per_rod"`
	CleanupIntervalHours float64 `json:"cleanupIntervalHours" yaml:"cleanup_interval_hours"`
	EnableLogging        bool    `json:"enableLogging" yaml:"enable_logging"`
}

// TTL returns SuggestionTTLHours as a duration.
func (c CleanupConfig) TTL() time.Duration {
	return hoursToDuration(c.SuggestionTTLHours)
}

// Interval returns CleanupIntervalHours as a duration.
func (c CleanupConfig) Interval() time.Duration {
	return hoursToDuration(c.CleanupIntervalHours)
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// CleanupPatch is a partial CleanupConfig; nil fields are left unchanged.
type CleanupPatch struct {
	SuggestionTTLHours   *float64 `json:"suggestionTtlHours,omitempty"`
	MaxSuggestionsPerRod *int     `json:"maxSuggestionsPerRod,omitempty"`
	CleanupIntervalHours *float64 `json:"cleanupIntervalHours,omitempty"`
	EnableLogging        *bool    `json:"enableLogging,omitempty"`
}

// Apply returns c with the non-nil fields of p merged in.
func (p CleanupPatch) Apply(c CleanupConfig) CleanupConfig {
	if p.SuggestionTTLHours != nil {
		c.SuggestionTTLHours = *p.SuggestionTTLHours
	}
	if p.MaxSuggestionsPerRod != nil {
		c.MaxSuggestionsPerRod = *p.MaxSuggestionsPerRod
	}
	if p.CleanupIntervalHours != nil {
		c.CleanupIntervalHours = *p.CleanupIntervalHours
	}
	if p.EnableLogging != nil {
		c.EnableLogging = *p.EnableLogging
	}
	return c
}

// PatchFrom builds a patch that sets every field to c's values.
func PatchFrom(c CleanupConfig) CleanupPatch {
	return CleanupPatch{
		SuggestionTTLHours:   &c.SuggestionTTLHours,
		MaxSuggestionsPerRod: &c.MaxSuggestionsPerRod,
		CleanupIntervalHours: &c.CleanupIntervalHours,
		EnableLogging:        &c.EnableLogging,
	}
}

// CleanupStats reports the outcome of one cleanup run.
type CleanupStats struct {
	ExpiredSuggestions int64     `json:"expiredSuggestions"`
	ExcessSuggestions  int64     `json:"excessSuggestions"`
	TotalDeleted       int64     `json:"totalDeleted"`
	CleanupDurationMs  int64     `json:"cleanupDuration"`
	Timestamp          time.Time `json:"timestamp"`
}

// CleanupStatus is a snapshot of the cleanup service state.
type CleanupStatus struct {
	IsAutoCleanupRunning bool          `json:"isAutoCleanupRunning"`
	Config               CleanupConfig `json:"config"`
	LastCleanup          *time.Time    `json:"lastCleanup"`
	NextCleanup          *time.Time    `json:"nextCleanup"`
}
