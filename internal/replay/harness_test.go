package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/content-autopilot/internal/config"
	"github.com/danielpatrickdp/content-autopilot/internal/engine"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

func fixtureOutcome(id string, publishedAgo time.Duration, mode string, retention float64, now time.Time) FixtureRecord {
	return fixtureOutcomeAt(id, now.Add(-publishedAgo), mode, retention)
}

func fixtureOutcomeAt(id string, publishedAt time.Time, mode string, retention float64) FixtureRecord {
	published := publishedAt.UTC().Format(time.RFC3339)
	views := int64(2000)
	swipe := 0.3
	return FixtureRecord{
		ID:                 id,
		CreatedAt:          publishedAt.Add(-time.Hour).UTC().Format(time.RFC3339),
		PublishedAt:        &published,
		Mode:               mode,
		TitleStyle:         "bold",
		HookStyle:          "contradiction",
		Category:           "ancient",
		PredictedRetention: 45,
		ActualRetention:    &retention,
		Views:              &views,
		SwipeRate:          &swipe,
		Eligible:           true,
		Status:             string(record.StatusComplete),
	}
}

func testFixture(now time.Time) *Fixture {
	f := &Fixture{
		Description: "six strong outcomes, one cycle",
		Cycles: []FixtureCycle{
			{CycleID: "c1", At: now.UTC().Format(time.RFC3339)},
		},
		ExpectedResults: []FixtureExpectedResult{
			{CycleID: "c1", Actions: map[string]string{
				string(record.DimensionMode): engine.ActionUpdated,
			}},
		},
	}
	for i := 0; i < 6; i++ {
		f.Records = append(f.Records,
			fixtureOutcome(fmt.Sprintf("r-%d", i), time.Duration(i+2)*time.Hour, "quality", 65, now))
	}
	return f
}

func replayConfig() config.Config {
	cfg := config.Default()
	cfg.Cycle.ShadowMinTotal = 0
	return cfg
}

func TestRunFixture(t *testing.T) {
	now := time.Date(2026, 8, 20, 23, 30, 0, 0, time.UTC)
	outcomes, summary, err := Run(testFixture(now), replayConfig())
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.Equal(t, 6, outcomes[0].Result.WindowSize)
	assert.Equal(t, engine.ActionUpdated, outcomes[0].Result.Dimensions[record.DimensionMode].Action)
	assert.Empty(t, summary.Mismatches)
	assert.Positive(t, summary.Updated)

	w := outcomes[0].Weights[record.DimensionMode]
	var sum float64
	for _, v := range w {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRunFixtureMultiDay(t *testing.T) {
	day1 := time.Date(2026, 8, 18, 23, 30, 0, 0, time.UTC)

	// Three consecutive days where the quality arm wins decisively.
	f := &Fixture{Description: "quality wins three days running"}
	for day := 0; day < 3; day++ {
		cycleAt := day1.AddDate(0, 0, day)
		base := cycleAt.Add(-13 * time.Hour)
		for i := 0; i < 8; i++ {
			pub := base.Add(time.Duration(i) * time.Minute)
			f.Records = append(f.Records,
				fixtureOutcomeAt(fmt.Sprintf("q-%d-%d", day, i), pub, "quality", 85),
				fixtureOutcomeAt(fmt.Sprintf("f-%d-%d", day, i), pub.Add(30*time.Second), "fast", 20),
			)
		}
		cid := fmt.Sprintf("day-%d", day+1)
		f.Cycles = append(f.Cycles, FixtureCycle{CycleID: cid, At: cycleAt.Format(time.RFC3339)})
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{
			CycleID: cid,
			Actions: map[string]string{string(record.DimensionMode): engine.ActionUpdated},
		})
	}

	outcomes, summary, err := Run(f, replayConfig())
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Empty(t, summary.Mismatches)

	// Each cycle only sees records published up to its own instant.
	assert.Equal(t, 16, outcomes[0].Result.WindowSize)
	assert.Equal(t, 48, outcomes[2].Result.WindowSize)

	// Day one hits the daily cap exactly; the later days keep climbing from
	// each day's starting weights rather than re-measuring against the seed
	// and freezing there.
	q1 := outcomes[0].Weights[record.DimensionMode]["quality"]
	q2 := outcomes[1].Weights[record.DimensionMode]["quality"]
	q3 := outcomes[2].Weights[record.DimensionMode]["quality"]
	assert.InDelta(t, 0.85, q1, 1e-9)
	assert.Greater(t, q2, q1)
	assert.Greater(t, q3, q2)
	assert.LessOrEqual(t, q3, 0.9+1e-9)
}

func TestRunReportsMismatch(t *testing.T) {
	now := time.Date(2026, 8, 20, 23, 30, 0, 0, time.UTC)
	f := testFixture(now)
	f.ExpectedResults[0].Actions[string(record.DimensionMode)] = engine.ActionNoChange

	_, summary, err := Run(f, replayConfig())
	require.NoError(t, err)
	require.Len(t, summary.Mismatches, 1)
	assert.Equal(t, engine.ActionNoChange, summary.Mismatches[0].Expected)
	assert.Equal(t, engine.ActionUpdated, summary.Mismatches[0].Actual)
}

func TestLoadFixture(t *testing.T) {
	now := time.Date(2026, 8, 20, 23, 30, 0, 0, time.UTC)
	f := testFixture(now)

	data, err := json.MarshalIndent(f, "", "  ")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, f.Description, loaded.Description)
	require.Len(t, loaded.Records, 6)

	rec, err := loaded.Records[0].ToContentRecord()
	require.NoError(t, err)
	assert.Equal(t, "r-0", rec.ID)
	assert.True(t, rec.HasOutcome())
}

func TestLoadFixtureMissingFile(t *testing.T) {
	_, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestFixtureRecordBadTimestamp(t *testing.T) {
	fr := FixtureRecord{ID: "x", CreatedAt: "not-a-time"}
	_, err := fr.ToContentRecord()
	assert.Error(t, err)
}
