// Package advisor produces watering and fertilizing suggestions from sensor readings.
//
// A Generator has no cache awareness. Rules is deterministic; LLM calls an
// OpenAI-compatible chat completions endpoint. Fallback chains the two so a
// failing backend still yields a suggestion.
package advisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/soilsense/soilsense/pkg/config"
	"github.com/soilsense/soilsense/pkg/models"
)

// ErrGeneration matches every failure of an advisory backend.
var ErrGeneration = errors.New("advisor generation failed")

// Result is a generated suggestion tagged with the backend that produced it.
type Result struct {
	Suggestion models.Suggestion
	// Model is the name of the backend that produced Suggestion.
	Model string
	// Degraded holds the primary backend error when a fallback served the result.
	Degraded error
}

// Generator maps one reading and plant type to a suggestion.
type Generator interface {
	Generate(ctx context.Context, reading models.SensorReading, plantType string) (Result, error)
	Name() string
}

func generationError(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGeneration, backend, err)
}

// FromConfig builds the generator chain for cfg: the LLM backend with a
// rule-based fallback when an API key is configured, plain rules otherwise.
func FromConfig(cfg config.AdvisorConfig) Generator {
	rules := NewRules()
	if !cfg.Enabled() {
		return rules
	}
	return NewFallback(NewLLM(cfg), rules)
}
