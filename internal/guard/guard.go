// Package guard enforces safety on bandit proposals before persistence.
// Each transform is a pure function from (previous state, proposal) to a
// new proposal, composed in a fixed order: bound clamp → category feedback
// → daily delta cap → recovery override. The cap runs after feedback so no
// committed weight ever moves more than the configured daily maximum.
package guard

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/content-autopilot/internal/reward"
	"github.com/danielpatrickdp/content-autopilot/internal/weights"
)

// ErrInfeasibleBounds means the configured bounds themselves cannot admit a
// valid distribution (e.g. minimums summing above 1). This is a
// configuration error and fails the dimension's update loudly.
var ErrInfeasibleBounds = errors.New("guard: bound configuration admits no valid distribution")

const sumTolerance = 1e-9

// #region config

// Config holds guardrail thresholds.
type Config struct {
	// MaxDailyChange caps |new - previous| per arm per cycle.
	MaxDailyChange float64

	// Category feedback: a slower second signal layered on top of the
	// bandit for the highest-blast-radius dimension.
	BoostThreshold float64 // decayed mean reward above this nudges weight up
	NerfThreshold  float64 // decayed mean reward below this nudges weight down
	FeedbackStep   float64 // fixed increment for boost/nerf
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxDailyChange: 0.15,
		BoostThreshold: 500,
		NerfThreshold:  250,
		FeedbackStep:   0.05,
	}
}

// #endregion

// #region bound-clamp

// ClampBounds clamps every arm into its [min,max] bound and redistributes
// the surplus or deficit proportionally across the arms that still have
// slack, so the vector sums to 1 with every component in bounds.
func ClampBounds(proposed map[string]float64, bounds map[string]weights.Bound) (map[string]float64, error) {
	var minSum, maxSum float64
	for arm := range proposed {
		b := bounds[arm]
		minSum += b.Min
		maxSum += b.Max
	}
	if minSum > 1+sumTolerance || maxSum < 1-sumTolerance {
		return nil, fmt.Errorf("%w: min sum %.3f, max sum %.3f", ErrInfeasibleBounds, minSum, maxSum)
	}

	out := make(map[string]float64, len(proposed))
	for arm, w := range proposed {
		b := bounds[arm]
		out[arm] = math.Max(b.Min, math.Min(b.Max, w))
	}

	// Redistribute until the vector sums to 1. Each pass moves the excess
	// onto arms with remaining slack in the needed direction; a pass count
	// bounded by the arm count always suffices since every pass pins at
	// least one more arm to a bound.
	for i := 0; i <= len(out); i++ {
		var total float64
		for _, w := range out {
			total += w
		}
		diff := 1 - total
		if math.Abs(diff) <= sumTolerance {
			return out, nil
		}

		var slack float64
		for arm, w := range out {
			b := bounds[arm]
			if diff > 0 {
				slack += b.Max - w
			} else {
				slack += w - b.Min
			}
		}
		if slack <= 0 {
			break
		}
		for arm, w := range out {
			b := bounds[arm]
			var room float64
			if diff > 0 {
				room = b.Max - w
			} else {
				room = w - b.Min
			}
			out[arm] = w + diff*(room/slack)
		}
	}
	return nil, fmt.Errorf("%w: redistribution did not converge", ErrInfeasibleBounds)
}

// #endregion

// #region delta-cap

// CapDailyDelta scales the whole proposed step back toward the previous
// weights until the largest per-arm change equals the cap. Both inputs sum
// to 1, so the capped vector does too; and because it is a convex
// combination of two in-bounds vectors it stays in bounds.
func CapDailyDelta(prev, proposed map[string]float64, cap float64) map[string]float64 {
	maxDelta := 0.0
	for arm, w := range proposed {
		d := math.Abs(w - prev[arm])
		if d > maxDelta {
			maxDelta = d
		}
	}
	if cap <= 0 || maxDelta <= cap {
		return copyMap(proposed)
	}
	scale := cap / maxDelta
	out := make(map[string]float64, len(proposed))
	for arm, w := range proposed {
		out[arm] = prev[arm] + scale*(w-prev[arm])
	}
	renormalize(out)
	return out
}

// #endregion

// #region category-feedback

// FeedbackChange describes one category nudge, for the cycle report.
type FeedbackChange struct {
	Arm       string
	Direction string // "boost" | "nerf"
	Score     float64
}

// CategoryFeedback nudges category weights by a fixed step when the
// decayed mean reward crosses the configured thresholds, then renormalizes.
// Intentionally slower and more conservative than the bandit update.
func CategoryFeedback(proposed map[string]float64, aggregates map[string]reward.Aggregate, cfg Config) (map[string]float64, []FeedbackChange) {
	out := copyMap(proposed)
	var changes []FeedbackChange
	for arm, agg := range aggregates {
		if agg.Neutral {
			continue
		}
		if _, ok := out[arm]; !ok {
			continue
		}
		switch {
		case agg.DecayedMean > cfg.BoostThreshold:
			out[arm] += cfg.FeedbackStep
			changes = append(changes, FeedbackChange{Arm: arm, Direction: "boost", Score: agg.DecayedMean})
		case agg.DecayedMean < cfg.NerfThreshold:
			out[arm] = math.Max(0, out[arm]-cfg.FeedbackStep)
			changes = append(changes, FeedbackChange{Arm: arm, Direction: "nerf", Score: agg.DecayedMean})
		}
	}
	if len(changes) > 0 {
		renormalize(out)
	}
	return out, changes
}

// #endregion

// #region helpers

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func renormalize(m map[string]float64) {
	var total float64
	for _, w := range m {
		total += w
	}
	if total <= 0 {
		return
	}
	for k, w := range m {
		m[k] = w / total
	}
}

// #endregion
