package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilsense/soilsense/pkg/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func draft(reading, rod string, at time.Time) models.CacheEntryDraft {
	return models.CacheEntryDraft{
		ReadingID: reading,
		RodID:     rod,
		PlantType: "Tomato",
		Model:     models.ModelRuleBased,
		Payload:   json.RawMessage(`{"plantHealth":{"score":80}}`),
		CreatedAt: at,
	}
}

func TestInsertAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.Insert(ctx, draft("r1", "rod-a", base))
	require.NoError(t, err)
	assert.NotZero(t, inserted.ID)

	got, err := s.FindLatestForReading(ctx, "r1", base.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, inserted.ID, got.ID)
	assert.Equal(t, "rod-a", got.RodID)
	assert.True(t, base.Equal(got.CreatedAt))
	assert.JSONEq(t, `{"plantHealth":{"score":80}}`, string(got.Payload))

	got, err = s.FindLatestForReading(ctx, "r1", base.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, got, "entry older than window should not be returned")

	got, err = s.FindLatestForReading(ctx, "missing", time.Time{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindLatestPicksNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, draft("r1", "rod-a", base))
	require.NoError(t, err)
	newest, err := s.Insert(ctx, draft("r1", "rod-a", base.Add(time.Minute)))
	require.NoError(t, err)

	got, err := s.FindLatestForReading(ctx, "r1", base.Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest.ID, got.ID)
}

func TestInsertStampsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return base }

	e, err := s.Insert(context.Background(), draft("r1", "rod-a", time.Time{}))
	require.NoError(t, err)
	assert.True(t, base.Equal(e.CreatedAt))
}

func TestDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		e, err := s.Insert(ctx, draft(fmt.Sprintf("r%d", i), "rod-a", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	_, err := s.Insert(ctx, draft("r9", "rod-b", base))
	require.NoError(t, err)

	n, err := s.DeleteByReadingID(ctx, "r0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteOlderThan(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "r1 and r9 are strictly older than cutoff")

	n, err = s.DeleteByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteByIDs(ctx, ids[2:])
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDeleteByRod(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Insert(ctx, draft(fmt.Sprintf("a%d", i), "rod-a", base))
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, draft("b0", "rod-b", base))
	require.NoError(t, err)

	n, err := s.DeleteByRod(ctx, "rod-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	left, err := s.CountByRod(ctx, "rod-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}

func TestCountsAndGrouping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insert := func(reading, rod, model string, at time.Time) {
		d := draft(reading, rod, at)
		d.Model = model
		_, err := s.Insert(ctx, d)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		insert(fmt.Sprintf("a%d", i), "rod-a", "deepseek", base.Add(time.Duration(i)*time.Minute))
	}
	for i := 0; i < 2; i++ {
		insert(fmt.Sprintf("b%d", i), "rod-b", models.ModelRuleBased, base)
	}
	insert("c0", "rod-c", models.ModelRuleBased, base.Add(-48*time.Hour))

	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)

	stale, err := s.CountOlderThan(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale)

	byModel, err := s.CountByModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"deepseek": 5, models.ModelRuleBased: 3}, byModel)

	over, err := s.GroupCountsByRod(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.RodCount{{RodID: "rod-a", Count: 5}}, over)

	top, err := s.TopRodsByCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []models.RodCount{{RodID: "rod-a", Count: 5}, {RodID: "rod-b", Count: 2}}, top)

	oldest, err := s.OldestForRod(ctx, "rod-a", 2)
	require.NoError(t, err)
	require.Len(t, oldest, 2)
	assert.Equal(t, "a0", oldest[0].ReadingID)
	assert.Equal(t, "a1", oldest[1].ReadingID)

	none, err := s.OldestForRod(ctx, "rod-a", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestErrorsMatchErrStore(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Count(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStore))
	assert.Contains(t, err.Error(), "database count suggestions")
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("postgres", "whatever")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", sqliteDialect.dsn("a.db"))
	assert.Equal(t, "a.db?mode=ro", sqliteDialect.dsn("a.db?mode=ro"))
	assert.Equal(t, ":memory:", sqliteDialect.dsn(":memory:"))
	assert.Equal(t, "user@/db", mysqlDialect.dsn("user@/db"))
}
