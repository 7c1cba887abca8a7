// Package engine runs the daily update cycle: read the outcome window,
// propose new selection weights per dimension, pass them through the
// guardrails, and commit. Dimensions update independently; one failing
// never blocks the others.
package engine

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/danielpatrickdp/content-autopilot/internal/bandit"
	"github.com/danielpatrickdp/content-autopilot/internal/calibration"
	"github.com/danielpatrickdp/content-autopilot/internal/config"
	"github.com/danielpatrickdp/content-autopilot/internal/guard"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
	"github.com/danielpatrickdp/content-autopilot/internal/reward"
	"github.com/danielpatrickdp/content-autopilot/internal/weights"
)

// Actions recorded per dimension in a cycle result and in the persisted
// update history.
const (
	ActionUpdated          = "updated"
	ActionNoChange         = "no_change"
	ActionNoSamples        = "no_samples"
	ActionInsufficientData = "insufficient_data"
	ActionLogOnly          = "log_only"
	ActionRecoveryOverride = "recovery_override"
	ActionFailed           = "failed"
)

// weightEpsilon is the change below which a proposal counts as no change
// and nothing is committed, keeping re-runs against an unchanged snapshot
// idempotent.
const weightEpsilon = 1e-6

// #region types

// Engine wires the stores and tuning together.
type Engine struct {
	records *record.Store
	weights *weights.Store
	cfg     config.Config
}

// New returns an engine over the given stores.
func New(records *record.Store, w *weights.Store, cfg config.Config) *Engine {
	return &Engine{records: records, weights: w, cfg: cfg}
}

// CycleResult summarizes one update cycle.
type CycleResult struct {
	At          time.Time
	WindowSize  int
	RecentCount int
	Skipped     int
	Shadow      bool
	Recovery    guard.RecoveryDecision
	Dimensions  map[record.Dimension]DimensionResult
}

// DimensionResult is one dimension's outcome within a cycle.
type DimensionResult struct {
	Action      string
	Reason      string
	SampleCount int
	OldWeights  map[string]float64
	NewWeights  map[string]float64
	Feedback    []guard.FeedbackChange
	Err         error
}

// #endregion

// #region seed

// Seed initializes every dimension's arm state from the configured
// defaults. Safe to call on every startup; existing state wins.
func (e *Engine) Seed() error {
	for _, d := range record.Dimensions() {
		if err := e.weights.SeedDefaults(d, e.cfg.DefaultWeights(d), e.cfg.Bounds(d)); err != nil {
			return fmt.Errorf("seed %s: %w", d, err)
		}
	}
	return nil
}

// #endregion

// #region run-cycle

// RunCycle executes one full update cycle at the given instant. It always
// returns a result; per-dimension failures are recorded in it rather than
// aborting the cycle.
func (e *Engine) RunCycle(now time.Time) (CycleResult, error) {
	result := CycleResult{
		At:         now,
		Dimensions: make(map[record.Dimension]DimensionResult),
	}

	set, err := e.records.ListEligibleComplete(now, e.cfg.Window())
	if err != nil {
		return result, fmt.Errorf("load signal window: %w", err)
	}
	result.WindowSize = len(set.Records)
	result.Skipped = set.Skipped
	if set.Skipped > 0 {
		log.Printf("[ENGINE] skipped %d malformed records in signal window", set.Skipped)
	}

	recentCutoff := now.Add(-time.Duration(e.cfg.Cycle.RecentHours) * time.Hour)
	for _, rec := range set.Records {
		if effectiveTime(rec).After(recentCutoff) {
			result.RecentCount++
		}
	}

	// Recovery is evaluated on the newest records regardless of how much
	// data the bandit has; it must be able to trip during a cold start.
	recentForRecovery := set.Records
	if len(recentForRecovery) > e.cfg.Cycle.SlidingWindow {
		recentForRecovery = recentForRecovery[:e.cfg.Cycle.SlidingWindow]
	}
	prevRecovery, err := e.weights.GetRecovery()
	if err != nil {
		return result, fmt.Errorf("load recovery state: %w", err)
	}
	result.Recovery = guard.EvaluateRecovery(prevRecovery, recentForRecovery, e.cfg.RecoveryConfig())
	if err := e.weights.SetRecovery(result.Recovery.State); err != nil {
		return result, fmt.Errorf("persist recovery state: %w", err)
	}
	if result.Recovery.Entered {
		log.Printf("[ENGINE] recovery mode entered after %d consecutive low outcomes", result.Recovery.State.ConsecutiveLow)
	}
	if result.Recovery.Cleared {
		log.Printf("[ENGINE] recovery mode cleared")
	}

	counts, err := e.records.StatusCounts()
	if err != nil {
		return result, fmt.Errorf("status counts: %w", err)
	}
	result.Shadow = counts[record.StatusComplete] < e.cfg.Cycle.ShadowMinTotal

	if result.RecentCount < e.cfg.Cycle.MinRecent {
		log.Printf("[ENGINE] insufficient recent data (%d < %d), holding weights",
			result.RecentCount, e.cfg.Cycle.MinRecent)
		for _, d := range record.Dimensions() {
			result.Dimensions[d] = DimensionResult{
				Action: ActionInsufficientData,
				Reason: fmt.Sprintf("%d records in last %dh, need %d", result.RecentCount, e.cfg.Cycle.RecentHours, e.cfg.Cycle.MinRecent),
			}
		}
		return result, nil
	}

	for _, d := range record.Dimensions() {
		result.Dimensions[d] = e.updateDimension(d, set.Records, now, result.Recovery.State.Active, result.Shadow)
	}
	return result, nil
}

func effectiveTime(rec record.ContentRecord) time.Time {
	if rec.PublishedAt != nil {
		return *rec.PublishedAt
	}
	return rec.CreatedAt
}

// #endregion

// #region update-dimension

// updateDimension runs the propose-guard-commit pipeline for one
// dimension, retrying from a fresh read when the compare-and-swap loses.
func (e *Engine) updateDimension(d record.Dimension, recs []record.ContentRecord, now time.Time, recoveryActive, shadow bool) DimensionResult {
	var last DimensionResult
	for attempt := 0; attempt < e.cfg.Cycle.MaxCommitRetries; attempt++ {
		res, retry := e.tryUpdateDimension(d, recs, now, recoveryActive, shadow)
		if !retry {
			return res
		}
		last = res
		log.Printf("[ENGINE] %s: stale write, retrying (%d/%d)", d, attempt+1, e.cfg.Cycle.MaxCommitRetries)
	}
	last.Action = ActionFailed
	last.Reason = "stale write retries exhausted"
	return last
}

func (e *Engine) tryUpdateDimension(d record.Dimension, recs []record.ContentRecord, now time.Time, recoveryActive, shadow bool) (DimensionResult, bool) {
	st, err := e.weights.GetDimension(d)
	if err != nil {
		return DimensionResult{Action: ActionFailed, Reason: "read state", Err: err}, false
	}

	// The delta cap is anchored to the weights in effect at the start of
	// the day, not the latest commit. A manual re-run after the scheduled
	// cycle then lands on the exact same capped result instead of walking
	// the weights a second step toward the proposal.
	anchor, err := e.weights.WeightsAt(d, dayStart(now))
	if err != nil {
		return DimensionResult{Action: ActionFailed, Reason: "read day-start weights", Err: err}, false
	}
	res := DimensionResult{OldWeights: st.Weights}
	arms := st.Arms()

	obs := reward.Observations(recs, now, d)
	prop := bandit.Propose(st.Weights, arms, obs, e.cfg.BanditConfig())
	res.SampleCount = prop.SampleCount
	if prop.NoOp {
		res.Action = ActionNoSamples
		res.Reason = "no outcomes for any arm in window"
		res.NewWeights = st.Weights
		return res, false
	}

	proposed, err := guard.ClampBounds(prop.Weights, st.Bounds)
	if err != nil {
		return DimensionResult{Action: ActionFailed, Reason: "bound clamp", OldWeights: st.Weights, Err: err}, false
	}

	// The category dimension carries a slower threshold-feedback signal on
	// top of the bandit; its nudges must respect the same bounds.
	if d == record.DimensionCategory {
		aggs := reward.AggregateDimension(recs, now, d, arms)
		nudged, changes := guard.CategoryFeedback(proposed, aggs, e.cfg.GuardConfig())
		res.Feedback = changes
		proposed, err = guard.ClampBounds(nudged, st.Bounds)
		if err != nil {
			return DimensionResult{Action: ActionFailed, Reason: "bound clamp after feedback", OldWeights: st.Weights, Err: err}, false
		}
	}

	final := guard.CapDailyDelta(anchor, proposed, e.cfg.Guard.MaxDailyChange)

	action := ActionUpdated
	reason := fmt.Sprintf("bandit update from %d samples", prop.SampleCount)
	if d == record.DimensionMode && recoveryActive {
		final = guard.ApplyRecoveryOverride(final, e.cfg.RecoveryConfig())
		action = ActionRecoveryOverride
		reason = "recovery mode active, conservative preset forced"
	}
	res.NewWeights = final

	if maxAbsDelta(st.Weights, final) <= weightEpsilon {
		res.Action = ActionNoChange
		res.Reason = "proposal matches committed weights"
		return res, false
	}

	if shadow {
		res.Action = ActionLogOnly
		res.Reason = fmt.Sprintf("shadow mode: %d total outcomes, weights held", prop.SampleCount)
		log.Printf("[ENGINE] %s: shadow proposal %v (held)", d, final)
		return res, false
	}

	err = e.weights.Commit(st, final, prop.Posteriors, action, reason, now)
	if err == weights.ErrStaleWrite {
		return res, true
	}
	if err != nil {
		return DimensionResult{Action: ActionFailed, Reason: "commit", OldWeights: st.Weights, Err: err}, false
	}
	if err := e.weights.PruneHistory(d, e.cfg.Cycle.HistoryKeep); err != nil {
		log.Printf("[ENGINE] %s: prune history: %v", d, err)
	}

	res.Action = action
	res.Reason = reason
	log.Printf("[ENGINE] %s: %s (%s)", d, action, reason)
	return res, false
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func maxAbsDelta(a, b map[string]float64) float64 {
	maxD := 0.0
	for arm, w := range b {
		if d := math.Abs(w - a[arm]); d > maxD {
			maxD = d
		}
	}
	return maxD
}

// #endregion

// #region diagnostics

// Calibrate builds the diagnostic report over the current signal window.
func (e *Engine) Calibrate(now time.Time) (calibration.Report, error) {
	set, err := e.records.ListEligibleComplete(now, e.cfg.Window())
	if err != nil {
		return calibration.Report{}, fmt.Errorf("load signal window: %w", err)
	}
	return calibration.Generate(set.Records, e.weights.WeightsAt, e.cfg.CalibrationConfig()), nil
}

// #endregion
