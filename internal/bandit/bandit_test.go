package bandit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danielpatrickdp/content-autopilot/internal/reward"
)

func repeatObs(normalized, decay float64, n int) []reward.Observation {
	out := make([]reward.Observation, n)
	for i := range out {
		out[i] = reward.Observation{Normalized: normalized, Decay: decay}
	}
	return out
}

func assertDistribution(t *testing.T, weights map[string]float64) {
	t.Helper()
	var sum float64
	for arm, w := range weights {
		assert.GreaterOrEqual(t, w, 0.0, "arm %s", arm)
		assert.LessOrEqual(t, w, 1.0, "arm %s", arm)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestProposeNoSamples(t *testing.T) {
	prev := map[string]float64{"quality": 0.7, "fast": 0.3}
	prop := Propose(prev, []string{"fast", "quality"}, nil, DefaultConfig())

	assert.True(t, prop.NoOp)
	assert.Equal(t, prev, prop.Weights)
	assert.Zero(t, prop.SampleCount)
}

func TestProposeShiftsTowardWinner(t *testing.T) {
	prev := map[string]float64{"a": 1.0 / 3, "b": 1.0 / 3, "c": 1.0 / 3}
	arms := []string{"a", "b", "c"}
	obs := map[string][]reward.Observation{
		"a": repeatObs(0.9, 1.0, 6),
		"b": repeatObs(0.1, 1.0, 6),
		"c": repeatObs(0.1, 1.0, 6),
	}

	prop := Propose(prev, arms, obs, DefaultConfig())

	assert.False(t, prop.NoOp)
	assert.Equal(t, 18, prop.SampleCount)
	assertDistribution(t, prop.Weights)
	assert.Greater(t, prop.Weights["a"], prev["a"])
	assert.Less(t, prop.Weights["b"], prev["b"])
	assert.Less(t, prop.Weights["c"], prev["c"])
	assert.InDelta(t, prop.Weights["b"], prop.Weights["c"], 1e-9)
}

func TestProposeOnlyOneArmObserved(t *testing.T) {
	// Only a strongly outperforms the baseline this cycle; the untouched
	// arms must both give up probability mass.
	prev := map[string]float64{"a": 0.33, "b": 0.33, "c": 0.34}
	arms := []string{"a", "b", "c"}
	obs := map[string][]reward.Observation{
		"a": repeatObs(0.95, 1.0, 8),
	}

	prop := Propose(prev, arms, obs, DefaultConfig())

	assertDistribution(t, prop.Weights)
	assert.Greater(t, prop.Weights["a"], prev["a"])
	assert.Less(t, prop.Weights["b"], prev["b"])
	assert.Less(t, prop.Weights["c"], prev["c"])
}

func TestProposeExploreFloor(t *testing.T) {
	// Even a consistently losing arm keeps at least the uniform share of
	// the explore mix.
	prev := map[string]float64{"a": 0.5, "b": 0.5}
	obs := map[string][]reward.Observation{
		"a": repeatObs(1.0, 1.0, 50),
		"b": repeatObs(0.0, 1.0, 50),
	}
	cfg := DefaultConfig()
	prop := Propose(prev, []string{"a", "b"}, obs, cfg)

	floor := cfg.ExploreRate * 0.5
	assert.GreaterOrEqual(t, prop.Weights["b"], floor-1e-9)
}

func TestProposeDeterministic(t *testing.T) {
	prev := map[string]float64{"a": 0.6, "b": 0.4}
	obs := map[string][]reward.Observation{
		"a": repeatObs(0.8, 1.0, 4),
		"b": repeatObs(0.3, 0.5, 4),
	}
	first := Propose(prev, []string{"a", "b"}, obs, DefaultConfig())
	second := Propose(prev, []string{"a", "b"}, obs, DefaultConfig())

	assert.Equal(t, first.Weights, second.Weights)
	assert.Equal(t, first.Posteriors, second.Posteriors)
}

func TestProposePosteriorsRebuiltFresh(t *testing.T) {
	cfg := DefaultConfig()
	obs := map[string][]reward.Observation{
		"a": {{Normalized: 1.0, Decay: 1.0}},
	}
	prop := Propose(map[string]float64{"a": 1.0}, []string{"a"}, obs, cfg)

	assert.InDelta(t, cfg.PriorAlpha+1.0, prop.Posteriors["a"].Alpha, 1e-9)
	assert.InDelta(t, cfg.PriorBeta, prop.Posteriors["a"].Beta, 1e-9)

	// Proposing again from the result must not double-count the record.
	again := Propose(prop.Weights, []string{"a"}, obs, cfg)
	assert.Equal(t, prop.Posteriors, again.Posteriors)
}

func TestProposeDecayScalesPseudoCounts(t *testing.T) {
	cfg := DefaultConfig()
	obs := map[string][]reward.Observation{
		"a": {{Normalized: 1.0, Decay: 0.1}},
	}
	prop := Propose(map[string]float64{"a": 1.0}, []string{"a"}, obs, cfg)
	assert.InDelta(t, cfg.PriorAlpha+0.1, prop.Posteriors["a"].Alpha, 1e-9)
}

func TestPosteriorMean(t *testing.T) {
	assert.InDelta(t, 0.5, Posterior{Alpha: 1, Beta: 1}.Mean(), 1e-9)
	assert.InDelta(t, 0.75, Posterior{Alpha: 3, Beta: 1}.Mean(), 1e-9)
	assert.InDelta(t, 0.5, Posterior{}.Mean(), 1e-9)
}

func TestTopArm(t *testing.T) {
	assert.Equal(t, "b", TopArm(map[string]float64{"a": 0.2, "b": 0.5, "c": 0.3}))
	// Ties break lexicographically so the result is stable.
	assert.Equal(t, "a", TopArm(map[string]float64{"b": 0.5, "a": 0.5}))
}
