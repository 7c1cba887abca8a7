package weights

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/content-autopilot/internal/bandit"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func seedMode(t *testing.T, store *Store) {
	t.Helper()
	err := store.SeedDefaults(record.DimensionMode,
		map[string]float64{"quality": 0.7, "fast": 0.3},
		map[string]Bound{
			"quality": {Min: 0.3, Max: 0.9},
			"fast":    {Min: 0.1, Max: 0.5},
		})
	require.NoError(t, err)
}

func TestSeedAndGet(t *testing.T) {
	store := newTestStore(t)
	seedMode(t, store)

	st, err := store.GetDimension(record.DimensionMode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Version)
	assert.InDelta(t, 0.7, st.Weights["quality"], 1e-9)
	assert.InDelta(t, 0.3, st.Weights["fast"], 1e-9)
	assert.Equal(t, Bound{Min: 0.3, Max: 0.9}, st.Bounds["quality"])
	assert.Equal(t, []string{"fast", "quality"}, st.Arms())
}

func TestSeedIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	seedMode(t, store)

	// Re-seeding with different defaults must not clobber existing state.
	err := store.SeedDefaults(record.DimensionMode,
		map[string]float64{"quality": 0.5, "fast": 0.5}, nil)
	require.NoError(t, err)

	st, err := store.GetDimension(record.DimensionMode)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, st.Weights["quality"], 1e-9)
}

func TestCommitBumpsVersionAndHistory(t *testing.T) {
	store := newTestStore(t)
	seedMode(t, store)

	st, err := store.GetDimension(record.DimensionMode)
	require.NoError(t, err)

	newWeights := map[string]float64{"quality": 0.8, "fast": 0.2}
	posteriors := map[string]bandit.Posterior{
		"quality": {Alpha: 4, Beta: 2},
		"fast":    {Alpha: 1.5, Beta: 3},
	}
	require.NoError(t, store.Commit(st, newWeights, posteriors, "updated", "test update", time.Now()))

	after, err := store.GetDimension(record.DimensionMode)
	require.NoError(t, err)
	assert.Equal(t, st.Version+1, after.Version)
	assert.InDelta(t, 0.8, after.Weights["quality"], 1e-9)
	assert.InDelta(t, 4, after.Posteriors["quality"].Alpha, 1e-9)

	entries, err := store.History(record.DimensionMode, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "updated", entries[0].Action)
	assert.Equal(t, "test update", entries[0].Reason)
	assert.InDelta(t, 0.7, entries[0].OldWeights["quality"], 1e-9)
	assert.InDelta(t, 0.8, entries[0].NewWeights["quality"], 1e-9)
}

func TestCommitStaleWrite(t *testing.T) {
	store := newTestStore(t)
	seedMode(t, store)

	first, err := store.GetDimension(record.DimensionMode)
	require.NoError(t, err)
	second := first

	w1 := map[string]float64{"quality": 0.75, "fast": 0.25}
	require.NoError(t, store.Commit(first, w1, first.Posteriors, "updated", "", time.Now()))

	// A second writer still holding the old version must lose.
	w2 := map[string]float64{"quality": 0.6, "fast": 0.4}
	err = store.Commit(second, w2, second.Posteriors, "updated", "", time.Now())
	assert.ErrorIs(t, err, ErrStaleWrite)

	st, err := store.GetDimension(record.DimensionMode)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, st.Weights["quality"], 1e-9)
}

func TestRecoveryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedMode(t, store)

	st, err := store.GetRecovery()
	require.NoError(t, err)
	assert.False(t, st.Active)

	require.NoError(t, store.SetRecovery(RecoveryState{Active: true, ConsecutiveLow: 6}))

	st, err = store.GetRecovery()
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, 6, st.ConsecutiveLow)
}

func TestWeightsAt(t *testing.T) {
	store := newTestStore(t)
	seedMode(t, store)

	// Commits are stamped with the caller's instant, which under replayed
	// cycles lies in the past; lookups must follow that logical clock, not
	// the wall clock.
	committedAt := time.Date(2026, 7, 1, 23, 30, 0, 0, time.UTC)
	st, err := store.GetDimension(record.DimensionMode)
	require.NoError(t, err)
	require.NoError(t, store.Commit(st,
		map[string]float64{"quality": 0.8, "fast": 0.2}, st.Posteriors, "updated", "", committedAt))

	// Before the first committed update, the seed weights were in effect.
	past, err := store.WeightsAt(record.DimensionMode, committedAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.7, past["quality"], 1e-9)

	after, err := store.WeightsAt(record.DimensionMode, committedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, after["quality"], 1e-9)
}

func TestWeightsAtNoHistory(t *testing.T) {
	store := newTestStore(t)
	seedMode(t, store)

	w, err := store.WeightsAt(record.DimensionMode, time.Now().UTC())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, w["quality"], 1e-9)
}

func TestPruneHistory(t *testing.T) {
	store := newTestStore(t)
	seedMode(t, store)

	for i := 0; i < 5; i++ {
		st, err := store.GetDimension(record.DimensionMode)
		require.NoError(t, err)
		require.NoError(t, store.Commit(st, st.Weights, st.Posteriors, "updated", "", time.Now()))
	}
	require.NoError(t, store.PruneHistory(record.DimensionMode, 2))

	entries, err := store.History(record.DimensionMode, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int64(6), entries[0].Version)
}
