// Package report renders cycle results and calibration diagnostics as
// plain text for the command-line tools and the daily log.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/danielpatrickdp/content-autopilot/internal/calibration"
	"github.com/danielpatrickdp/content-autopilot/internal/engine"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

// #region cycle

// RenderCycle writes a human-readable summary of one update cycle.
func RenderCycle(w io.Writer, res engine.CycleResult) {
	fmt.Fprintf(w, "Update cycle at %s\n", res.At.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  window: %d records (%d recent, %d skipped malformed)\n",
		res.WindowSize, res.RecentCount, res.Skipped)
	if res.Shadow {
		fmt.Fprintf(w, "  shadow mode: proposals logged, weights held\n")
	}
	switch {
	case res.Recovery.Entered:
		fmt.Fprintf(w, "  recovery: ENTERED (consecutive low: %d)\n", res.Recovery.State.ConsecutiveLow)
	case res.Recovery.Cleared:
		fmt.Fprintf(w, "  recovery: cleared\n")
	case res.Recovery.State.Active:
		fmt.Fprintf(w, "  recovery: active (consecutive low: %d)\n", res.Recovery.State.ConsecutiveLow)
	}

	for _, d := range record.Dimensions() {
		dr, ok := res.Dimensions[d]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\n  %s: %s", d, dr.Action)
		if dr.Reason != "" {
			fmt.Fprintf(w, " (%s)", dr.Reason)
		}
		fmt.Fprintln(w)
		if dr.Err != nil {
			fmt.Fprintf(w, "    error: %v\n", dr.Err)
			continue
		}
		renderWeightDiff(w, dr.OldWeights, dr.NewWeights)
		for _, fc := range dr.Feedback {
			fmt.Fprintf(w, "    feedback: %s %s (decayed mean %.0f)\n", fc.Direction, fc.Arm, fc.Score)
		}
	}
}

func renderWeightDiff(w io.Writer, prev, next map[string]float64) {
	arms := make([]string, 0, len(next))
	for arm := range next {
		arms = append(arms, arm)
	}
	sort.Strings(arms)
	for _, arm := range arms {
		delta := next[arm] - prev[arm]
		if delta == 0 {
			fmt.Fprintf(w, "    %-14s %.3f\n", arm, next[arm])
		} else {
			fmt.Fprintf(w, "    %-14s %.3f (%+.3f)\n", arm, next[arm], delta)
		}
	}
}

// #endregion cycle

// #region calibration

// RenderCalibration writes the full diagnostic report.
func RenderCalibration(w io.Writer, rep calibration.Report) {
	fmt.Fprintf(w, "Calibration report, %s\n", rep.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(w, "  records analyzed: %d\n", rep.N)
	if rep.Status != "ready" {
		fmt.Fprintf(w, "  status: %s\n", rep.Status)
		renderRefineDelta(w, rep.RefineDelta)
		return
	}

	fmt.Fprintf(w, "\nCorrelations (n=%d)\n", rep.Correlations.N)
	fmt.Fprintf(w, "  predicted vs actual:   rho=%.2f  %s\n",
		rep.Correlations.PredictedVsActual.Rho, rep.Correlations.PredictedVsActual.Interpretation)
	fmt.Fprintf(w, "  final score vs actual: rho=%.2f  %s\n",
		rep.Correlations.FinalScoreVsActual.Rho, rep.Correlations.FinalScoreVsActual.Interpretation)

	fmt.Fprintf(w, "\nCalibration curve (bias = predicted - actual, pp)\n")
	for _, b := range rep.Calibration.Bands {
		if !b.Sufficient {
			fmt.Fprintf(w, "  %-6s n=%-3d insufficient\n", b.Label, b.N)
			continue
		}
		fmt.Fprintf(w, "  %-6s n=%-3d predicted %.1f  actual %.1f  bias %+.1f\n",
			b.Label, b.N, b.MeanPredicted, b.MeanActual, b.BiasPP)
	}
	fmt.Fprintf(w, "  overall: %+.1fpp (%s)\n", rep.Calibration.OverallBiasPP, rep.Calibration.Direction)

	fmt.Fprintf(w, "\nRefine impact\n")
	for _, b := range rep.RefineImpact.Buckets {
		if !b.Sufficient {
			fmt.Fprintf(w, "  refines=%-2s n=%-3d insufficient\n", b.Label, b.N)
			continue
		}
		fmt.Fprintf(w, "  refines=%-2s n=%-3d mean %.1f  median %.1f\n",
			b.Label, b.N, b.MeanActual, b.MedianActual)
	}
	fmt.Fprintf(w, "  verdict: %s\n", rep.RefineImpact.Verdict)

	fmt.Fprintf(w, "\nScore bands\n")
	fmt.Fprintf(w, "  above threshold: n=%d mean %.1f | below: n=%d mean %.1f\n",
		rep.ScoreBands.AboveN, rep.ScoreBands.MeanAbove, rep.ScoreBands.BelowN, rep.ScoreBands.MeanBelow)
	fmt.Fprintf(w, "  verdict: %s\n", rep.ScoreBands.Verdict)

	fmt.Fprintf(w, "\nExplore/exploit\n")
	dims := make([]string, 0, len(rep.ExploreExploit.ByDimension))
	for d := range rep.ExploreExploit.ByDimension {
		dims = append(dims, string(d))
	}
	sort.Strings(dims)
	for _, d := range dims {
		fmt.Fprintf(w, "  %-14s %.0f%%\n", d, rep.ExploreExploit.ByDimension[record.Dimension(d)]*100)
	}
	fmt.Fprintf(w, "  overall %.0f%%: %s\n", rep.ExploreExploit.OverallRatio*100, rep.ExploreExploit.Verdict)

	fmt.Fprintf(w, "\nOutliers (error > %.0fpp)\n", rep.Outliers.ThresholdPP)
	for _, o := range rep.Outliers.FalsePositives {
		fmt.Fprintf(w, "  overpredicted:  %s predicted %.1f actual %.1f\n", o.ID, o.Predicted, o.Actual)
	}
	for _, o := range rep.Outliers.FalseNegatives {
		fmt.Fprintf(w, "  underpredicted: %s predicted %.1f actual %.1f\n", o.ID, o.Predicted, o.Actual)
	}
	if len(rep.Outliers.FalsePositives)+len(rep.Outliers.FalseNegatives) == 0 {
		fmt.Fprintf(w, "  none\n")
	}

	fmt.Fprintf(w, "\nCategories\n")
	for _, c := range rep.Categories {
		fmt.Fprintf(w, "  %-14s n=%-3d mean %.1f median %.1f range [%.1f, %.1f]\n",
			c.Category, c.N, c.MeanActual, c.MedianActual, c.MinActual, c.MaxActual)
	}

	renderRefineDelta(w, rep.RefineDelta)
}

func renderRefineDelta(w io.Writer, rd calibration.RefineDelta) {
	fmt.Fprintf(w, "\nRefine delta (self-optimization check)\n")
	fmt.Fprintf(w, "  instrumented records: %d\n", rd.Instrumented)
	if !rd.Sufficient {
		fmt.Fprintf(w, "  verdict: %s\n", rd.Verdict)
		return
	}
	fmt.Fprintf(w, "  mean score delta: %+.2f\n", rd.MeanDelta)
	if rd.CorrelationValid {
		fmt.Fprintf(w, "  delta vs outcome correlation: %.2f\n", rd.Correlation)
	} else {
		fmt.Fprintf(w, "  delta vs outcome correlation: undefined (no variance)\n")
	}
	fmt.Fprintf(w, "  verdict: %s\n", rd.Verdict)
}

// #endregion calibration
