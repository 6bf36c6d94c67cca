// Package suggest serves suggestions for sensor readings, caching each one
// per reading id.
//
// A lookup hits when the store holds an entry for the reading created within
// the freshness window. A miss generates a new suggestion, deletes every
// earlier entry for the reading and inserts the replacement, so at most one
// row per reading survives once concurrent calls settle. Misses for the same
// reading inside one process share a single generation.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/soilsense/soilsense/pkg/advisor"
	"github.com/soilsense/soilsense/pkg/config"
	"github.com/soilsense/soilsense/pkg/models"
	"github.com/soilsense/soilsense/pkg/store"
)

// ErrInvalidReading is returned for readings without an id.
var ErrInvalidReading = errors.New("invalid reading")

// Recorder receives lookup outcomes. *monitor.Monitor implements it.
type Recorder interface {
	RecordCacheHit(latency time.Duration, model, rodID, readingID string)
	RecordCacheMiss(latency time.Duration, model, rodID, readingID string)
	RecordAIError(latency time.Duration, msg, rodID, readingID string)
	RecordCacheError(msg, rodID, readingID string)
	RecordDBError(msg, rodID, readingID string)
}

// Result is a suggestion plus whether it came from the cache. It encodes as
// the suggestion's fields with an extra "cached" key.
type Result struct {
	models.Suggestion
	Cached bool `json:"cached"`
	// PlantType is the label the suggestion was produced for.
	PlantType string `json:"-"`
}

// Service is the suggestion cache.
type Service struct {
	store    store.Store
	gen      advisor.Generator
	recorder Recorder
	logger   *zap.Logger

	window       time.Duration
	timeout      time.Duration
	defaultPlant string

	flight singleflight.Group
	now    func() time.Time
}

// New creates a Service. A nil logger disables logging.
func New(st store.Store, gen advisor.Generator, rec Recorder, cfg config.CacheConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	plant := cfg.DefaultPlantType
	if plant == "" {
		plant = "Unknown"
	}
	return &Service{
		store:        st,
		gen:          gen,
		recorder:     rec,
		logger:       logger,
		window:       cfg.FreshnessWindow,
		timeout:      cfg.GenerateTimeout,
		defaultPlant: plant,
		now:          time.Now,
	}
}

// DataHash is a non-cryptographic digest of the seven sensor values. It is
// diagnostic only; entries are keyed by reading id.
func DataHash(r models.SensorReading) string {
	return strconv.FormatUint(xxhash.Sum64String(r.Fingerprint()), 16)
}

// GetOrCreate returns the cached suggestion for reading, generating and
// storing a new one when none is fresh. An empty plantType uses the
// configured default. Every outcome is reported to the Recorder, and
// failures are returned after being recorded.
func (s *Service) GetOrCreate(ctx context.Context, reading models.SensorReading, rodID, plantType string) (Result, error) {
	start := s.now()
	if plantType == "" {
		plantType = s.defaultPlant
	}
	if rodID == "" {
		rodID = reading.RodID
	}

	res, err := s.getOrCreate(ctx, reading, rodID, plantType, start)
	if err != nil {
		s.recordFailure(err, s.now().Sub(start), rodID, reading.ID)
		return Result{}, fmt.Errorf("get suggestion for reading %s: %w", reading.ID, err)
	}
	return res, nil
}

func (s *Service) getOrCreate(ctx context.Context, reading models.SensorReading, rodID, plantType string, start time.Time) (Result, error) {
	if reading.ID == "" {
		return Result{}, fmt.Errorf("%w: missing id", ErrInvalidReading)
	}

	log := s.logger.With(
		zap.String("reading_id", reading.ID),
		zap.String("rod_id", rodID),
		zap.String("data_hash", DataHash(reading)),
	)

	entry, err := s.store.FindLatestForReading(ctx, reading.ID, start.Add(-s.window))
	if err != nil {
		return Result{}, err
	}
	if entry != nil {
		sugg, err := decode(entry.Payload)
		if err == nil {
			s.recorder.RecordCacheHit(s.now().Sub(start), entry.Model, rodID, reading.ID)
			log.Debug("suggestion cache hit", zap.String("model", entry.Model))
			return Result{Suggestion: sugg, Cached: true, PlantType: plantType}, nil
		}
		// The row is replaced below like any other miss.
		s.recorder.RecordCacheError(err.Error(), rodID, reading.ID)
		log.Warn("discarding unreadable cached suggestion", zap.Int64("entry_id", entry.ID), zap.Error(err))
	}

	v, err, shared := s.flight.Do(reading.ID, func() (any, error) {
		return s.generateAndStore(context.WithoutCancel(ctx), reading, rodID, plantType)
	})
	if err != nil {
		return Result{}, err
	}
	gen := v.(advisor.Result)

	s.recorder.RecordCacheMiss(s.now().Sub(start), gen.Model, rodID, reading.ID)
	log.Debug("suggestion cache miss", zap.String("model", gen.Model), zap.Bool("shared", shared))
	return Result{Suggestion: gen.Suggestion, Cached: false, PlantType: plantType}, nil
}

// generateAndStore runs to completion even when the caller goes away; the
// generator is bounded by the configured timeout.
func (s *Service) generateAndStore(ctx context.Context, reading models.SensorReading, rodID, plantType string) (advisor.Result, error) {
	began := s.now()

	genCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.gen.Generate(genCtx, reading, plantType)
	if err != nil {
		if !errors.Is(err, advisor.ErrGeneration) {
			err = fmt.Errorf("%w: %s: %w", advisor.ErrGeneration, s.gen.Name(), err)
		}
		return advisor.Result{}, err
	}
	if res.Degraded != nil {
		s.recorder.RecordAIError(s.now().Sub(began), res.Degraded.Error(), rodID, reading.ID)
		s.logger.Warn("advisor degraded to fallback",
			zap.String("reading_id", reading.ID),
			zap.String("model", res.Model),
			zap.Error(res.Degraded),
		)
	}
	if err := res.Suggestion.Validate(); err != nil {
		return advisor.Result{}, fmt.Errorf("generated suggestion: %w", err)
	}

	payload, err := json.Marshal(res.Suggestion)
	if err != nil {
		return advisor.Result{}, fmt.Errorf("encode suggestion: %w", err)
	}

	if _, err := s.store.DeleteByReadingID(ctx, reading.ID); err != nil {
		return advisor.Result{}, err
	}
	if _, err := s.store.Insert(ctx, models.CacheEntryDraft{
		ReadingID: reading.ID,
		RodID:     rodID,
		PlantType: plantType,
		Model:     res.Model,
		Payload:   payload,
		CreatedAt: s.now(),
	}); err != nil {
		return advisor.Result{}, err
	}
	return res, nil
}

func decode(payload json.RawMessage) (models.Suggestion, error) {
	var sugg models.Suggestion
	if err := json.Unmarshal(payload, &sugg); err != nil {
		return models.Suggestion{}, fmt.Errorf("decode cached suggestion: %w", err)
	}
	if err := sugg.Validate(); err != nil {
		return models.Suggestion{}, fmt.Errorf("cached suggestion: %w", err)
	}
	return sugg, nil
}

func (s *Service) recordFailure(err error, latency time.Duration, rodID, readingID string) {
	msg := err.Error()
	switch Classify(err) {
	case models.EventDBError:
		s.recorder.RecordDBError(msg, rodID, readingID)
	case models.EventAIError:
		s.recorder.RecordAIError(latency, msg, rodID, readingID)
	default:
		s.recorder.RecordCacheError(msg, rodID, readingID)
	}
	s.logger.Error("suggestion lookup failed",
		zap.String("reading_id", readingID),
		zap.String("rod_id", rodID),
		zap.Error(err),
	)
}

var (
	dbMarkers = []string{"database", "sql", "sqlite", "mysql"}
	aiMarkers = []string{"advisor", "llm", "openai", "huggingface"}
)

// Classify maps err to the error bucket it is recorded under.
func Classify(err error) models.EventType {
	switch {
	case errors.Is(err, store.ErrStore):
		return models.EventDBError
	case errors.Is(err, advisor.ErrGeneration):
		return models.EventAIError
	}

	msg := strings.ToLower(err.Error())
	for _, m := range dbMarkers {
		if strings.Contains(msg, m) {
			return models.EventDBError
		}
	}
	for _, m := range aiMarkers {
		if strings.Contains(msg, m) {
			return models.EventAIError
		}
	}
	return models.EventCacheError
}
