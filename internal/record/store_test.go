package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	store.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { store.Close() })
	return store
}

func pendingRecord(id string, createdAt time.Time) ContentRecord {
	return ContentRecord{
		ID:                 id,
		CreatedAt:          createdAt,
		Mode:               "quality",
		TitleStyle:         "bold",
		HookStyle:          "contradiction",
		Category:           "ancient",
		PredictedRetention: 48.0,
		Eligible:           true,
		Status:             StatusPending,
	}
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	first := 7.5
	final := 8.9
	rec := pendingRecord("r1", created)
	rec.FirstScore = &first
	rec.FinalScore = &final
	rec.RefineCount = 2
	require.NoError(t, store.Insert(rec))

	got, err := store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "quality", got.Mode)
	assert.Equal(t, StatusPending, got.Status)
	assert.True(t, got.CreatedAt.Equal(created))
	require.NotNil(t, got.FirstScore)
	assert.InDelta(t, 7.5, *got.FirstScore, 1e-9)
	assert.Nil(t, got.ActualRetention)
	assert.False(t, got.HasOutcome())
}

func TestLifecycleTransitions(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(pendingRecord("r1", now)))

	require.NoError(t, store.MarkLinked("r1", now.Add(time.Hour)))
	got, err := store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusLinked, got.Status)
	require.NotNil(t, got.PublishedAt)

	require.NoError(t, store.MarkComplete("r1", 42.0, 1500, 0.25, now.Add(48*time.Hour)))
	got, err = store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.True(t, got.HasOutcome())
	assert.InDelta(t, 42.0, *got.ActualRetention, 1e-9)
	// The publish time from linking survives completion.
	assert.True(t, got.PublishedAt.Equal(now.Add(time.Hour)))

	// Completing twice is rejected; the outcome is written once.
	err = store.MarkComplete("r1", 99.0, 1, 0.9, now)
	assert.Error(t, err)
	got, _ = store.Get("r1")
	assert.InDelta(t, 42.0, *got.ActualRetention, 1e-9)
}

func TestMarkFailed(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, store.Insert(pendingRecord("r1", now)))
	require.NoError(t, store.MarkFailed("r1"))

	got, err := store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Nil(t, got.ActualRetention)
}

func TestListEligibleComplete(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	insertComplete := func(id string, publishedAgo time.Duration, eligible bool) {
		rec := pendingRecord(id, now.Add(-publishedAgo-time.Hour))
		rec.Eligible = eligible
		require.NoError(t, store.Insert(rec))
		require.NoError(t, store.MarkLinked(id, now.Add(-publishedAgo)))
		require.NoError(t, store.MarkComplete(id, 40.0, 1000, 0.3, now))
	}

	insertComplete("in-window", 24*time.Hour, true)
	insertComplete("ineligible", 24*time.Hour, false)
	insertComplete("too-old", 60*24*time.Hour, true)

	// A row marked complete without outcome fields counts as malformed.
	malformed := pendingRecord("malformed", now.Add(-time.Hour))
	malformed.Status = StatusComplete
	require.NoError(t, store.Insert(malformed))

	// Still pending, never a signal.
	require.NoError(t, store.Insert(pendingRecord("pending", now.Add(-time.Hour))))

	set, err := store.ListEligibleComplete(now, 42*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.Equal(t, "in-window", set.Records[0].ID)
	assert.Equal(t, 1, set.Skipped)
}

func TestListEligibleCompleteWindowEndsAtNow(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	insert := func(id string, publishedAt time.Time) {
		rec := pendingRecord(id, publishedAt.Add(-time.Hour))
		require.NoError(t, store.Insert(rec))
		require.NoError(t, store.MarkLinked(id, publishedAt))
		require.NoError(t, store.MarkComplete(id, 40.0, 1000, 0.3, publishedAt))
	}

	insert("past", now.Add(-time.Hour))
	insert("next-day", now.Add(24*time.Hour))
	// Half a second past now. Stored timestamps keep fixed-width fractional
	// seconds, so the string comparison cannot missort this before now.
	insert("next-subsecond", now.Add(500*time.Millisecond))

	set, err := store.ListEligibleComplete(now, 42*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, set.Records, 1)
	assert.Equal(t, "past", set.Records[0].ID)

	set, err = store.ListEligibleComplete(now.Add(time.Second), 42*24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, set.Records, 2)
}

func TestListEligibleCompleteOrder(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"oldest", "middle", "newest"} {
		ago := time.Duration(3-i) * 24 * time.Hour
		rec := pendingRecord(id, now.Add(-ago-time.Hour))
		require.NoError(t, store.Insert(rec))
		require.NoError(t, store.MarkLinked(id, now.Add(-ago)))
		require.NoError(t, store.MarkComplete(id, 40.0, 1000, 0.3, now))
	}

	set, err := store.ListEligibleComplete(now, 42*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, set.Records, 3)
	assert.Equal(t, "newest", set.Records[0].ID)
	assert.Equal(t, "oldest", set.Records[2].ID)
}

func TestStatusCounts(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.Insert(pendingRecord("p1", now)))
	require.NoError(t, store.Insert(pendingRecord("p2", now)))
	require.NoError(t, store.Insert(pendingRecord("c1", now)))
	require.NoError(t, store.MarkComplete("c1", 40.0, 1000, 0.3, now))

	counts, err := store.StatusCounts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusComplete])
}
