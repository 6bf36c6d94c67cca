package advisor

import (
	"context"

	"github.com/soilsense/soilsense/pkg/models"
)

// Fallback serves from Secondary whenever Primary fails.
type Fallback struct {
	Primary   Generator
	Secondary Generator
}

// NewFallback chains primary and secondary.
func NewFallback(primary, secondary Generator) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary}
}

// Name returns the primary backend's name.
func (f *Fallback) Name() string { return f.Primary.Name() }

// Generate tries Primary, then Secondary. A result served by Secondary
// carries the primary error in Degraded. The error is returned only when
// both fail.
func (f *Fallback) Generate(ctx context.Context, reading models.SensorReading, plantType string) (Result, error) {
	res, err := f.Primary.Generate(ctx, reading, plantType)
	if err == nil {
		return res, nil
	}

	// The primary may have failed on ctx's deadline; the secondary still gets a try.
	res, secErr := f.Secondary.Generate(context.WithoutCancel(ctx), reading, plantType)
	if secErr != nil {
		return Result{}, secErr
	}
	res.Degraded = err
	return res, nil
}
