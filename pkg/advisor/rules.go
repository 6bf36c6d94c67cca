package advisor

import (
	"context"

	"github.com/soilsense/soilsense/pkg/models"
)

// Rules is the deterministic threshold table.
type Rules struct{}

// NewRules returns the rule-based generator.
func NewRules() *Rules { return &Rules{} }

// Name returns the model tag recorded for rule-based suggestions.
func (r *Rules) Name() string { return models.ModelRuleBased }

// Generate never fails.
func (r *Rules) Generate(_ context.Context, reading models.SensorReading, _ string) (Result, error) {
	return Result{Suggestion: Suggest(reading), Model: r.Name()}, nil
}

// Suggest applies the threshold table to reading.
func Suggest(reading models.SensorReading) models.Suggestion {
	n := nutrientLevels(reading)
	return models.Suggestion{
		Watering:    watering(reading.Moisture),
		Fertilizing: fertilizing(n),
		PlantHealth: health(reading, n),
	}
}

func watering(moisture *float64) models.WateringAdvice {
	if moisture == nil {
		return models.WateringAdvice{
			Recommendation: models.RecommendLater,
			HoursUntilNext: 24,
			Reason:         "Moisture level optimal",
			Urgency:        models.UrgencyLow,
		}
	}

	m := *moisture
	switch {
	case m < 20:
		return models.WateringAdvice{
			Recommendation: models.RecommendNow,
			HoursUntilNext: 0,
			Reason:         "Soil moisture critically low",
			Urgency:        models.UrgencyHigh,
		}
	case m < 40:
		return models.WateringAdvice{
			Recommendation: models.RecommendSoon,
			HoursUntilNext: 2,
			Reason:         "Soil moisture getting low",
			Urgency:        models.UrgencyMedium,
		}
	case m <= 70:
		return models.WateringAdvice{
			Recommendation: models.RecommendLater,
			HoursUntilNext: 12,
			Reason:         "Soil moisture is adequate",
			Urgency:        models.UrgencyLow,
		}
	default:
		return models.WateringAdvice{
			Recommendation: models.RecommendNotNeeded,
			HoursUntilNext: 48,
			Reason:         "Soil is well hydrated",
			Urgency:        models.UrgencyLow,
		}
	}
}

type levels struct {
	criticalN, criticalP, criticalK bool
	lowN, lowP, lowK                bool
}

func below(v *float64, limit float64) bool {
	return v != nil && *v < limit
}

func nutrientLevels(r models.SensorReading) levels {
	return levels{
		criticalN: below(r.Nitrogen, 10),
		lowN:      below(r.Nitrogen, 20),
		criticalP: below(r.Phosphorus, 5),
		lowP:      below(r.Phosphorus, 15),
		criticalK: below(r.Potassium, 30),
		lowK:      below(r.Potassium, 50),
	}
}

func fertilizing(n levels) models.FertilizingAdvice {
	advice := func(rec models.Recommendation, days int, reason string, t models.NutrientType, u models.Urgency) models.FertilizingAdvice {
		return models.FertilizingAdvice{Recommendation: rec, DaysUntilNext: days, Reason: reason, Type: t, Urgency: u}
	}

	// Critical deficiencies take precedence over combined lows.
	switch {
	case n.criticalP:
		return advice(models.RecommendNow, 0, "Severe phosphorus deficiency detected", models.NutrientPhosphorus, models.UrgencyCritical)
	case n.criticalN:
		return advice(models.RecommendNow, 0, "Severe nitrogen deficiency detected", models.NutrientNitrogen, models.UrgencyCritical)
	case n.criticalK:
		return advice(models.RecommendSoon, 1, "Severe potassium deficiency detected", models.NutrientPotassium, models.UrgencyCritical)
	case n.lowN && n.lowP && n.lowK:
		return advice(models.RecommendSoon, 2, "Multiple nutrients are low", models.NutrientBalanced, models.UrgencyHigh)
	case n.lowN:
		return advice(models.RecommendSoon, 3, "Nitrogen levels are low", models.NutrientNitrogen, models.UrgencyMedium)
	case n.lowP:
		return advice(models.RecommendSoon, 3, "Phosphorus levels are low", models.NutrientPhosphorus, models.UrgencyMedium)
	case n.lowK:
		return advice(models.RecommendLater, 5, "Potassium levels are low", models.NutrientPotassium, models.UrgencyLow)
	default:
		return advice(models.RecommendLater, 14, "Nutrient levels adequate", models.NutrientBalanced, models.UrgencyLow)
	}
}

func health(r models.SensorReading, n levels) models.PlantHealth {
	score := 70
	concerns := []string{}

	if t := r.Temperature; t != nil {
		switch {
		case *t < 15 || *t > 35:
			score -= 20
			concerns = append(concerns, "Temperature stress")
		case *t >= 18 && *t <= 25:
			score += 10
		}
	}

	if ph := r.PH; ph != nil {
		switch {
		case *ph < 6.0 || *ph > 7.5:
			score -= 15
			concerns = append(concerns, "pH imbalance")
		case *ph <= 7.0:
			score += 8
		}
	}

	if m := r.Moisture; m != nil {
		switch {
		case *m < 30:
			score -= 25
			concerns = append(concerns, "Water stress")
		case *m >= 50 && *m <= 70:
			score += 12
		case *m > 80:
			score -= 10
			concerns = append(concerns, "Overwatering risk")
		}
	}

	if !n.lowN && !n.lowP && !n.lowK {
		score += 8
	}

	// Status is taken from the raw score; only the reported score is clamped.
	return models.PlantHealth{
		Score:    models.ClampScore(score),
		Status:   models.StatusForScore(score),
		Concerns: concerns,
	}
}
