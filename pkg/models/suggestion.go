package models

import (
	"errors"
	"fmt"
)

// Recommendation is the timing advice for watering or fertilizing.
type Recommendation string

const (
	RecommendNow       Recommendation = "now"
	RecommendSoon      Recommendation = "soon"
	RecommendLater     Recommendation = "later"
	RecommendNotNeeded Recommendation = "not_needed"
)

// Urgency grades how pressing a recommendation is.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// NutrientType names the fertilizer to apply.
type NutrientType string

const (
	NutrientNitrogen   NutrientType = "nitrogen"
	NutrientPhosphorus NutrientType = "phosphorus"
	NutrientPotassium  NutrientType = "potassium"
	NutrientBalanced   NutrientType = "balanced"
	NutrientNone       NutrientType = "none"
)

// HealthStatus buckets a plant health score.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
)

// Upper bounds of the "until next" ranges; not_needed sits at or beyond them.
const (
	WateringHorizonHours   = 24
	FertilizingHorizonDays = 14
)

// WateringAdvice is the watering half of a suggestion.
type WateringAdvice struct {
	Recommendation Recommendation `json:"recommendation"`
	HoursUntilNext int            `json:"hoursUntilNext"`
	Reason         string         `json:"reason"`
	Urgency        Urgency        `json:"urgency"`
}

// FertilizingAdvice is the fertilizing half of a suggestion.
type FertilizingAdvice struct {
	Recommendation Recommendation `json:"recommendation"`
	DaysUntilNext  int            `json:"daysUntilNext"`
	Reason         string         `json:"reason"`
	Type           NutrientType   `json:"type"`
	Urgency        Urgency        `json:"urgency"`
}

// PlantHealth summarizes the overall condition inferred from a reading.
type PlantHealth struct {
	Score    int          `json:"score"`
	Status   HealthStatus `json:"status"`
	Concerns []string     `json:"concerns"`
}

// Suggestion is the advisory payload cached per reading.
type Suggestion struct {
	Watering    WateringAdvice    `json:"watering"`
	Fertilizing FertilizingAdvice `json:"fertilizing"`
	PlantHealth PlantHealth       `json:"plantHealth"`
}

// ErrInvalidSuggestion is returned by Validate.
var ErrInvalidSuggestion = errors.New("invalid suggestion")

// StatusForScore maps a health score to its status bucket.
func StatusForScore(score int) HealthStatus {
	switch {
	case score >= 90:
		return HealthExcellent
	case score >= 75:
		return HealthGood
	case score >= 60:
		return HealthFair
	case score >= 40:
		return HealthPoor
	default:
		return HealthCritical
	}
}

// ClampScore limits a score to [0,100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Validate checks the enum tags, ranges and timing invariants of s.
func (s Suggestion) Validate() error {
	w := s.Watering
	switch w.Recommendation {
	case RecommendNow, RecommendSoon, RecommendLater, RecommendNotNeeded:
	default:
		return fmt.Errorf("%w: watering recommendation %q", ErrInvalidSuggestion, w.Recommendation)
	}
	switch w.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
	default:
		return fmt.Errorf("%w: watering urgency %q", ErrInvalidSuggestion, w.Urgency)
	}
	if w.HoursUntilNext < 0 {
		return fmt.Errorf("%w: negative hoursUntilNext", ErrInvalidSuggestion)
	}
	if w.Recommendation == RecommendNow && w.HoursUntilNext != 0 {
		return fmt.Errorf("%w: watering now with %dh until next", ErrInvalidSuggestion, w.HoursUntilNext)
	}
	if w.Recommendation == RecommendNotNeeded && w.HoursUntilNext < WateringHorizonHours {
		return fmt.Errorf("%w: watering not_needed within %dh", ErrInvalidSuggestion, w.HoursUntilNext)
	}

	f := s.Fertilizing
	switch f.Recommendation {
	case RecommendNow, RecommendSoon, RecommendLater, RecommendNotNeeded:
	default:
		return fmt.Errorf("%w: fertilizing recommendation %q", ErrInvalidSuggestion, f.Recommendation)
	}
	switch f.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
	default:
		return fmt.Errorf("%w: fertilizing urgency %q", ErrInvalidSuggestion, f.Urgency)
	}
	switch f.Type {
	case NutrientNitrogen, NutrientPhosphorus, NutrientPotassium, NutrientBalanced, NutrientNone:
	default:
		return fmt.Errorf("%w: nutrient type %q", ErrInvalidSuggestion, f.Type)
	}
	if f.DaysUntilNext < 0 {
		return fmt.Errorf("%w: negative daysUntilNext", ErrInvalidSuggestion)
	}
	if f.Recommendation == RecommendNow && f.DaysUntilNext != 0 {
		return fmt.Errorf("%w: fertilizing now with %dd until next", ErrInvalidSuggestion, f.DaysUntilNext)
	}
	if f.Recommendation == RecommendNotNeeded && f.DaysUntilNext < FertilizingHorizonDays {
		return fmt.Errorf("%w: fertilizing not_needed within %dd", ErrInvalidSuggestion, f.DaysUntilNext)
	}

	h := s.PlantHealth
	if h.Score < 0 || h.Score > 100 {
		return fmt.Errorf("%w: score %d out of range", ErrInvalidSuggestion, h.Score)
	}
	switch h.Status {
	case HealthExcellent, HealthGood, HealthFair, HealthPoor, HealthCritical:
	default:
		return fmt.Errorf("%w: health status %q", ErrInvalidSuggestion, h.Status)
	}
	return nil
}
