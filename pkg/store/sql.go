package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/soilsense/soilsense/pkg/models"
)

// SQLStore implements Store on SQLite or MySQL.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

type entryRow struct {
	ID         int64  `db:"id"`
	ReadingID  string `db:"reading_id"`
	RodID      string `db:"rod_id"`
	PlantType  string `db:"plant_type"`
	Model      string `db:"model"`
	Suggestion string `db:"suggestion"`
	CreatedAt  int64  `db:"created_at"`
}

func (r entryRow) entry() models.CacheEntry {
	return models.CacheEntry{
		ID:        r.ID,
		ReadingID: r.ReadingID,
		RodID:     r.RodID,
		PlantType: r.PlantType,
		Model:     r.Model,
		Payload:   json.RawMessage(r.Suggestion),
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

const selectEntry = `SELECT id, reading_id, rod_id, plant_type, model, suggestion, created_at FROM ai_suggestions`

// Open connects to the database for driver ("sqlite" or "mysql") and runs migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.driver, d.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("open suggestion db: %w", err)
	}
	if d.maxConns > 0 {
		db.SetMaxOpenConns(d.maxConns)
	}

	for _, stmt := range d.migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate suggestion db: %w", err)
		}
	}

	return &SQLStore{db: db, now: time.Now}, nil
}

// FindLatestForReading returns the newest entry for readingID created at or after since.
func (s *SQLStore) FindLatestForReading(ctx context.Context, readingID string, since time.Time) (*models.CacheEntry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row,
		selectEntry+` WHERE reading_id = ? AND created_at >= ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		readingID, since.UnixNano(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find suggestion", err)
	}
	e := row.entry()
	return &e, nil
}

// Insert stores a new entry.
func (s *SQLStore) Insert(ctx context.Context, draft models.CacheEntryDraft) (*models.CacheEntry, error) {
	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_suggestions (reading_id, rod_id, plant_type, model, suggestion, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		draft.ReadingID, draft.RodID, draft.PlantType, draft.Model, string(draft.Payload), createdAt.UnixNano(),
	)
	if err != nil {
		return nil, wrap("insert suggestion", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrap("insert suggestion id", err)
	}

	return &models.CacheEntry{
		ID:        id,
		ReadingID: draft.ReadingID,
		RodID:     draft.RodID,
		PlantType: draft.PlantType,
		Model:     draft.Model,
		Payload:   draft.Payload,
		CreatedAt: time.Unix(0, createdAt.UnixNano()).UTC(),
	}, nil
}

// DeleteByReadingID removes every entry for a reading.
func (s *SQLStore) DeleteByReadingID(ctx context.Context, readingID string) (int64, error) {
	return s.exec(ctx, "delete reading suggestions", `DELETE FROM ai_suggestions WHERE reading_id = ?`, readingID)
}

// DeleteOlderThan removes entries created strictly before cutoff.
func (s *SQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.exec(ctx, "delete expired suggestions", `DELETE FROM ai_suggestions WHERE created_at < ?`, cutoff.UnixNano())
}

// DeleteByIDs removes the entries with the given ids.
func (s *SQLStore) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM ai_suggestions WHERE id IN (?)`, ids)
	if err != nil {
		return 0, wrap("delete suggestions by id", err)
	}
	return s.exec(ctx, "delete suggestions by id", s.db.Rebind(query), args...)
}

// DeleteByRod removes every entry owned by a rod.
func (s *SQLStore) DeleteByRod(ctx context.Context, rodID string) (int64, error) {
	return s.exec(ctx, "delete rod suggestions", `DELETE FROM ai_suggestions WHERE rod_id = ?`, rodID)
}

func (s *SQLStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// Count returns the total number of entries.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	return s.count(ctx, "count suggestions", `SELECT COUNT(*) FROM ai_suggestions`)
}

// CountOlderThan returns the number of entries created strictly before cutoff.
func (s *SQLStore) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.count(ctx, "count stale suggestions", `SELECT COUNT(*) FROM ai_suggestions WHERE created_at < ?`, cutoff.UnixNano())
}

// CountByRod returns the number of entries owned by a rod.
func (s *SQLStore) CountByRod(ctx context.Context, rodID string) (int64, error) {
	return s.count(ctx, "count rod suggestions", `SELECT COUNT(*) FROM ai_suggestions WHERE rod_id = ?`, rodID)
}

func (s *SQLStore) count(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, wrap(op, err)
	}
	return n, nil
}

// CountByModel returns entry counts keyed by model tag.
func (s *SQLStore) CountByModel(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Model string `db:"model"`
		Count int64  `db:"cnt"`
	}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT model, COUNT(*) AS cnt FROM ai_suggestions GROUP BY model`); err != nil {
		return nil, wrap("count suggestions by model", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Model] = r.Count
	}
	return out, nil
}

// GroupCountsByRod returns per-rod counts for rods with more than minCount entries.
func (s *SQLStore) GroupCountsByRod(ctx context.Context, minCount int64) ([]models.RodCount, error) {
	var counts []models.RodCount
	if err := s.db.SelectContext(ctx, &counts,
		`SELECT rod_id, COUNT(*) AS cnt FROM ai_suggestions
		 GROUP BY rod_id HAVING COUNT(*) > ? ORDER BY rod_id`, minCount); err != nil {
		return nil, wrap("group suggestions by rod", err)
	}
	return counts, nil
}

// OldestForRod returns up to limit entries of a rod, oldest first.
func (s *SQLStore) OldestForRod(ctx context.Context, rodID string, limit int) ([]models.CacheEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows,
		selectEntry+` WHERE rod_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, rodID, limit); err != nil {
		return nil, wrap("oldest rod suggestions", err)
	}
	entries := make([]models.CacheEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

// TopRodsByCount returns the limit rods with the most entries, largest first.
func (s *SQLStore) TopRodsByCount(ctx context.Context, limit int) ([]models.RodCount, error) {
	var counts []models.RodCount
	if err := s.db.SelectContext(ctx, &counts,
		`SELECT rod_id, COUNT(*) AS cnt FROM ai_suggestions
		 GROUP BY rod_id ORDER BY cnt DESC, rod_id ASC LIMIT ?`, limit); err != nil {
		return nil, wrap("top rods by suggestions", err)
	}
	return counts, nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
