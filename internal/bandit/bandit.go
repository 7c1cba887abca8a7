// Package bandit turns aggregated rewards into proposed selection
// probabilities, one dimension at a time. The proposal is a pure function
// of the previous weights, the window's observations, and the config, so
// re-running a cycle against the same snapshot is a no-op by construction.
package bandit

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/content-autopilot/internal/reward"
)

// #region types

// Posterior holds an arm's Beta pseudo-counts.
type Posterior struct {
	Alpha float64
	Beta  float64
}

// Mean returns the posterior expected success rate.
func (p Posterior) Mean() float64 {
	total := p.Alpha + p.Beta
	if total == 0 {
		return 0.5
	}
	return p.Alpha / total
}

// Config tunes the updater.
type Config struct {
	// Temperature controls the softmax sharpness: lower sharpens toward
	// the best-performing arm, higher preserves exploration.
	Temperature float64
	// ExploreRate mixes a uniform distribution into the softmax output.
	ExploreRate float64
	// PriorAlpha/PriorBeta seed each arm's posterior before observations.
	PriorAlpha float64
	PriorBeta  float64
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Temperature: 0.25,
		ExploreRate: 0.2,
		PriorAlpha:  1.0,
		PriorBeta:   1.0,
	}
}

// Proposal is one dimension's updated distribution before guardrails.
type Proposal struct {
	// Weights is a complete probability vector: values in [0,1], sum 1.
	Weights map[string]float64
	// Posteriors are the recomputed Beta parameters per arm.
	Posteriors map[string]Posterior
	// SampleCount is the total observations behind this proposal.
	SampleCount int
	// NoOp is true when no arm had any samples; Weights then equals the
	// previous distribution unchanged.
	NoOp bool
}

// #endregion

// #region propose

// Propose recomputes each arm's Beta posterior from the window's
// observations, converts posterior means to a distribution via a
// temperature softmax, and mixes in a uniform explore component.
//
// Pseudo-counts are rebuilt fresh each call (alpha = prior + Σ r·decay,
// beta = prior + Σ (1-r)·decay) instead of accumulated incrementally, so a
// record observed in both a scheduled cycle and a manual re-run is never
// counted twice.
func Propose(prev map[string]float64, arms []string, obs map[string][]reward.Observation, cfg Config) Proposal {
	posteriors := make(map[string]Posterior, len(arms))
	total := 0
	for _, arm := range arms {
		p := Posterior{Alpha: cfg.PriorAlpha, Beta: cfg.PriorBeta}
		for _, o := range obs[arm] {
			p.Alpha += o.Normalized * o.Decay
			p.Beta += (1 - o.Normalized) * o.Decay
		}
		posteriors[arm] = p
		total += len(obs[arm])
	}

	if total == 0 {
		return Proposal{
			Weights:    copyWeights(prev, arms),
			Posteriors: posteriors,
			NoOp:       true,
		}
	}

	means := make(map[string]float64, len(arms))
	for _, arm := range arms {
		means[arm] = posteriors[arm].Mean()
	}

	weights := softmax(means, arms, cfg.Temperature)

	// Uniform explore mix.
	uniform := 1.0 / float64(len(arms))
	for _, arm := range arms {
		weights[arm] = (1-cfg.ExploreRate)*weights[arm] + cfg.ExploreRate*uniform
	}

	normalize(weights, arms)

	return Proposal{
		Weights:     weights,
		Posteriors:  posteriors,
		SampleCount: total,
	}
}

// #endregion

// #region softmax

// softmax converts per-arm values to a probability vector, shifting by the
// max value for numerical stability.
func softmax(values map[string]float64, arms []string, temperature float64) map[string]float64 {
	if temperature <= 0 {
		temperature = 1.0
	}
	maxVal := math.Inf(-1)
	for _, arm := range arms {
		if values[arm] > maxVal {
			maxVal = values[arm]
		}
	}
	out := make(map[string]float64, len(arms))
	var sum float64
	for _, arm := range arms {
		e := math.Exp((values[arm] - maxVal) / temperature)
		out[arm] = e
		sum += e
	}
	for _, arm := range arms {
		out[arm] /= sum
	}
	return out
}

// #endregion

// #region helpers

func normalize(weights map[string]float64, arms []string) {
	var sum float64
	for _, arm := range arms {
		sum += weights[arm]
	}
	if sum <= 0 {
		uniform := 1.0 / float64(len(arms))
		for _, arm := range arms {
			weights[arm] = uniform
		}
		return
	}
	for _, arm := range arms {
		weights[arm] /= sum
	}
}

func copyWeights(prev map[string]float64, arms []string) map[string]float64 {
	out := make(map[string]float64, len(arms))
	missing := 0
	for _, arm := range arms {
		if w, ok := prev[arm]; ok {
			out[arm] = w
		} else {
			missing++
		}
	}
	// Arms added since the previous state start at zero and pick up weight
	// through normalization only when the previous vector is empty.
	if len(out) == 0 {
		uniform := 1.0 / float64(len(arms))
		for _, arm := range arms {
			out[arm] = uniform
		}
	} else if missing > 0 {
		for _, arm := range arms {
			if _, ok := out[arm]; !ok {
				out[arm] = 0
			}
		}
		normalize(out, arms)
	}
	return out
}

// TopArm returns the highest-weighted arm, breaking ties lexicographically.
func TopArm(weights map[string]float64) string {
	arms := make([]string, 0, len(weights))
	for arm := range weights {
		arms = append(arms, arm)
	}
	sort.Strings(arms)
	best := ""
	bestW := math.Inf(-1)
	for _, arm := range arms {
		if weights[arm] > bestW {
			best = arm
			bestW = weights[arm]
		}
	}
	return best
}

// #endregion
