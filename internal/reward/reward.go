// Package reward converts measured engagement into the scalar learning
// signal consumed by the bandit, and aggregates it per arm with recency
// decay. Everything here is pure read/compute.
package reward

import (
	"math"
	"time"

	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

// #region constants

const (
	// MinViews is the insufficient-sample floor: records below it
	// contribute zero reward so single-viewer noise cannot dominate.
	MinViews = 100

	retentionFactor = 1.5
	stoppingFactor  = 2.0

	// Winsorization window for mapping retention onto [0,1] pseudo-count
	// space. Anything below winsorLow counts as a full failure, anything
	// above winsorHigh as a full success.
	winsorLow  = 10.0
	winsorHigh = 85.0

	// NeutralNormalized is the prior used for an arm with no samples, so an
	// untried arm is not starved of future selection probability.
	NeutralNormalized = 0.5
)

// #endregion

// #region compute

// Compute returns the raw reward for one record:
//
//	(retention × 1.5 + stoppingPower × 2.0) × log10(views)
//
// where stoppingPower = (1 - swipeRate) * 100. Records without a full
// outcome, or with fewer than MinViews views, contribute zero.
func Compute(rec record.ContentRecord) float64 {
	if !rec.HasOutcome() {
		return 0
	}
	views := *rec.Views
	if views < MinViews {
		return 0
	}
	stoppingPower := (1.0 - *rec.SwipeRate) * 100.0
	base := *rec.ActualRetention*retentionFactor + stoppingPower*stoppingFactor
	return base * math.Log10(float64(views))
}

// Normalized maps a record's retention onto [0,1] for Beta pseudo-counts:
// winsorize to [10,85], then scale linearly. The mapping is monotonic and
// bounded; records below the view floor map to zero.
func Normalized(rec record.ContentRecord) float64 {
	if !rec.HasOutcome() || *rec.Views < MinViews {
		return 0
	}
	clamped := math.Max(winsorLow, math.Min(winsorHigh, *rec.ActualRetention))
	return (clamped - winsorLow) / (winsorHigh - winsorLow)
}

// #endregion

// #region decay

// DecayWeight returns the recency weight for a record of the given age.
// Monotonically non-increasing: recent outcomes dominate without history
// being discarded outright.
func DecayWeight(age time.Duration) float64 {
	days := age.Hours() / 24
	switch {
	case days <= 7:
		return 1.0
	case days <= 14:
		return 0.5
	case days <= 21:
		return 0.25
	default:
		return 0.1
	}
}

// #endregion

// #region aggregate

// Aggregate is the decay-weighted summary for one (dimension, arm) pair.
type Aggregate struct {
	// DecayedMean is the mean of reward × decay over the arm's samples, so
	// a record older than 21 days contributes exactly 0.1× what an
	// otherwise-identical fresh record would. For an arm with no samples it
	// is zero and Neutral is true.
	DecayedMean float64
	SampleCount int
	Neutral     bool
}

// AggregateArm computes the decayed mean reward over every record whose
// chosen value for the dimension equals arm. Zero eligible samples yields
// a neutral aggregate rather than starving the arm.
func AggregateArm(records []record.ContentRecord, now time.Time, d record.Dimension, arm string) Aggregate {
	var sum float64
	var count int
	for _, rec := range records {
		if rec.Arm(d) != arm {
			continue
		}
		sum += Compute(rec) * DecayWeight(rec.Age(now))
		count++
	}
	if count == 0 {
		return Aggregate{Neutral: true}
	}
	return Aggregate{
		DecayedMean: sum / float64(count),
		SampleCount: count,
	}
}

// AggregateDimension computes per-arm aggregates for every listed arm.
func AggregateDimension(records []record.ContentRecord, now time.Time, d record.Dimension, arms []string) map[string]Aggregate {
	out := make(map[string]Aggregate, len(arms))
	for _, arm := range arms {
		out[arm] = AggregateArm(records, now, d, arm)
	}
	return out
}

// #endregion

// #region observations

// Observation is one record's contribution to an arm's Beta posterior:
// the normalized reward and the recency decay applied to it.
type Observation struct {
	Normalized float64
	Decay      float64
}

// Observations collects per-arm bandit observations for a dimension.
// Records that fail the view floor still appear (as zero-reward
// observations) so a run of low-view records counts as evidence of failure
// rather than silence, except records without any outcome, which are
// excluded upstream.
func Observations(records []record.ContentRecord, now time.Time, d record.Dimension) map[string][]Observation {
	out := make(map[string][]Observation)
	for _, rec := range records {
		arm := rec.Arm(d)
		if arm == "" {
			continue
		}
		out[arm] = append(out[arm], Observation{
			Normalized: Normalized(rec),
			Decay:      DecayWeight(rec.Age(now)),
		})
	}
	return out
}

// #endregion
