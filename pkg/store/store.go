// Package store persists cached suggestions.
//
// The suggestion payload is stored as an opaque JSON document; callers own
// its schema. Timestamps are stored as Unix nanoseconds so ordering and
// cutoff comparisons behave the same on every dialect.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/soilsense/soilsense/pkg/models"
)

// ErrStore matches every error returned by a Store.
var ErrStore = errors.New("database error")

// Error is a failed store operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "database " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStore) true for any store failure.
func (e *Error) Is(target error) bool { return target == ErrStore }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Store is the persistence boundary for cached suggestions.
type Store interface {
	// FindLatestForReading returns the newest entry for readingID created at
	// or after since, or nil when there is none.
	FindLatestForReading(ctx context.Context, readingID string, since time.Time) (*models.CacheEntry, error)
	// Insert stores a new entry and returns it with its assigned id.
	Insert(ctx context.Context, draft models.CacheEntryDraft) (*models.CacheEntry, error)
	// DeleteByReadingID removes every entry for a reading.
	DeleteByReadingID(ctx context.Context, readingID string) (int64, error)
	// DeleteOlderThan removes entries created strictly before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteByIDs removes the entries with the given ids.
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	// DeleteByRod removes every entry owned by a rod.
	DeleteByRod(ctx context.Context, rodID string) (int64, error)
	// Count returns the total number of entries.
	Count(ctx context.Context) (int64, error)
	// CountOlderThan returns the number of entries created strictly before cutoff.
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// CountByRod returns the number of entries owned by a rod.
	CountByRod(ctx context.Context, rodID string) (int64, error)
	// CountByModel returns entry counts keyed by model tag.
	CountByModel(ctx context.Context) (map[string]int64, error)
	// GroupCountsByRod returns per-rod counts for rods with more than minCount entries.
	GroupCountsByRod(ctx context.Context, minCount int64) ([]models.RodCount, error)
	// OldestForRod returns up to limit entries of a rod, oldest first.
	OldestForRod(ctx context.Context, rodID string, limit int) ([]models.CacheEntry, error)
	// TopRodsByCount returns the limit rods with the most entries, largest first.
	TopRodsByCount(ctx context.Context, limit int) ([]models.RodCount, error)
	// Close releases resources.
	Close() error
}
