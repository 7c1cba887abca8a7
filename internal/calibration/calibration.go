// Package calibration statistically validates the scoring signal that
// drives the weight updates: is it predicting real audience behavior, or
// rewarding its own rewrites? It reads historical records only and never
// writes weights; its output gates how much an operator trusts the loop.
package calibration

import (
	"fmt"
	"sort"
	"time"

	"github.com/danielpatrickdp/content-autopilot/internal/bandit"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

// WeightsAtFunc looks up the selection weights that were in effect for a
// dimension at a past instant. Used by the explore/exploit analysis; may
// be nil, which marks that analysis insufficient.
type WeightsAtFunc func(d record.Dimension, t time.Time) (map[string]float64, error)

// #region generate

// Generate builds the full diagnostic report from eligible complete
// records. Records without a usable outcome are ignored.
func Generate(records []record.ContentRecord, weightsAt WeightsAtFunc, cfg Config) Report {
	usable := make([]record.ContentRecord, 0, len(records))
	for _, rec := range records {
		if rec.Eligible && rec.HasOutcome() {
			usable = append(usable, rec)
		}
	}

	report := Report{
		GeneratedAt: time.Now().UTC(),
		N:           len(usable),
	}
	if len(usable) < cfg.MinRecords {
		report.Status = "insufficient_data"
		// The Goodhart test still reports its own sample count so the
		// operator can see how far away a verdict is.
		report.RefineDelta = analyzeRefineDelta(usable, cfg)
		return report
	}
	report.Status = "ready"

	report.Correlations = analyzeCorrelations(usable, cfg)
	report.Calibration = analyzeCalibrationCurve(usable, cfg)
	report.RefineImpact = analyzeRefineImpact(usable, cfg)
	report.ScoreBands = analyzeScoreBands(usable, cfg)
	report.ExploreExploit = analyzeExploreExploit(usable, weightsAt, cfg)
	report.Outliers = analyzeOutliers(usable, cfg)
	report.Categories = analyzeCategories(usable)
	report.RefineDelta = analyzeRefineDelta(usable, cfg)
	return report
}

// #endregion

// #region correlations

func analyzeCorrelations(records []record.ContentRecord, cfg Config) Correlations {
	out := Correlations{N: len(records), Sufficient: true}

	predicted := make([]float64, len(records))
	actual := make([]float64, len(records))
	for i, rec := range records {
		predicted[i] = rec.PredictedRetention
		actual[i] = *rec.ActualRetention
	}
	out.PredictedVsActual = correlationStat(predicted, actual)

	var finals, finalActual []float64
	for _, rec := range records {
		if rec.FinalScore != nil {
			finals = append(finals, *rec.FinalScore)
			finalActual = append(finalActual, *rec.ActualRetention)
		}
	}
	if len(finals) >= cfg.MinRecords {
		out.FinalScoreVsActual = correlationStat(finals, finalActual)
	} else {
		out.FinalScoreVsActual = CorrelationStat{Interpretation: "insufficient scored records"}
	}
	return out
}

func correlationStat(x, y []float64) CorrelationStat {
	rho, ok := spearman(x, y)
	st := CorrelationStat{Rho: rho, Valid: ok}
	switch {
	case !ok:
		st.Interpretation = "no variance"
	case rho >= 0.7:
		st.Interpretation = "strong: signal ranks outcomes well"
	case rho >= 0.5:
		st.Interpretation = "moderate: directionally correct"
	case rho >= 0.3:
		st.Interpretation = "weak: rubric needs revision"
	default:
		st.Interpretation = "negligible: signal is not modeling the audience"
	}
	return st
}

// #endregion

// #region calibration-curve

var predictedBands = []struct {
	label  string
	lo, hi float64
}{
	{"30-40", 30, 40},
	{"40-45", 40, 45},
	{"45-50", 45, 50},
	{"50-55", 50, 55},
	{"55-60", 55, 60},
	{"60+", 60, 1000},
}

func analyzeCalibrationCurve(records []record.ContentRecord, cfg Config) CalibrationCurve {
	type bucket struct {
		predicted []float64
		actual    []float64
	}
	buckets := make([]bucket, len(predictedBands))
	for _, rec := range records {
		p := rec.PredictedRetention
		for i, band := range predictedBands {
			if p >= band.lo && p < band.hi {
				buckets[i].predicted = append(buckets[i].predicted, p)
				buckets[i].actual = append(buckets[i].actual, *rec.ActualRetention)
				break
			}
		}
	}

	curve := CalibrationCurve{}
	var biasSum float64
	var counted int
	for i, band := range predictedBands {
		b := CalibrationBand{Label: band.label, N: len(buckets[i].predicted)}
		if b.N >= cfg.MinPerBucket {
			b.Sufficient = true
			b.MeanPredicted = mean(buckets[i].predicted)
			b.MeanActual = mean(buckets[i].actual)
			b.BiasPP = b.MeanPredicted - b.MeanActual
			biasSum += b.BiasPP * float64(b.N)
			counted += b.N
		}
		curve.Bands = append(curve.Bands, b)
	}
	if counted > 0 {
		curve.OverallBiasPP = biasSum / float64(counted)
	}
	switch {
	case curve.OverallBiasPP > 2:
		curve.Direction = "optimistic"
	case curve.OverallBiasPP < -2:
		curve.Direction = "pessimistic"
	default:
		curve.Direction = "calibrated"
	}
	return curve
}

// #endregion

// #region refine-impact

func analyzeRefineImpact(records []record.ContentRecord, cfg Config) RefineImpact {
	labels := []string{"0", "1", "2", "3", "4+"}
	grouped := make([][]float64, len(labels))
	for _, rec := range records {
		i := rec.RefineCount
		if i > 4 {
			i = 4
		}
		if i < 0 {
			i = 0
		}
		grouped[i] = append(grouped[i], *rec.ActualRetention)
	}

	impact := RefineImpact{}
	prev := -1.0
	for i, label := range labels {
		b := RefineBucket{Label: label, N: len(grouped[i])}
		if b.N >= cfg.MinPerBucket {
			b.Sufficient = true
			b.MeanActual = mean(grouped[i])
			b.MedianActual = median(grouped[i])
			if prev >= 0 && b.MeanActual < prev-2.0 {
				impact.DecliningCurve = true
			}
			prev = b.MeanActual
		}
		impact.Buckets = append(impact.Buckets, b)
	}
	if impact.DecliningCurve {
		impact.Verdict = "more refinement correlates with worse outcomes"
	} else {
		impact.Verdict = "no decline across refine buckets"
	}
	return impact
}

// #endregion

// #region score-bands

func analyzeScoreBands(records []record.ContentRecord, cfg Config) ScoreBands {
	var above, below []float64
	for _, rec := range records {
		if rec.FinalScore == nil {
			continue
		}
		if *rec.FinalScore >= cfg.QualityThreshold {
			above = append(above, *rec.ActualRetention)
		} else {
			below = append(below, *rec.ActualRetention)
		}
	}
	bands := ScoreBands{AboveN: len(above), BelowN: len(below)}
	if len(above) < cfg.MinPerBucket || len(below) < cfg.MinPerBucket {
		bands.Verdict = "insufficient data for threshold analysis"
		return bands
	}
	bands.Sufficient = true
	bands.MeanAbove = mean(above)
	bands.MeanBelow = mean(below)
	bands.AdvantagePP = bands.MeanAbove - bands.MeanBelow
	switch {
	case bands.AdvantagePP > 3:
		bands.Verdict = fmt.Sprintf("threshold justified: %.1fpp advantage above %.1f", bands.AdvantagePP, cfg.QualityThreshold)
	case bands.AdvantagePP > 0:
		bands.Verdict = fmt.Sprintf("marginal: only %.1fpp advantage, consider lowering the threshold", bands.AdvantagePP)
	default:
		bands.Verdict = fmt.Sprintf("threshold too high: below-threshold records perform %.1fpp better", -bands.AdvantagePP)
	}
	return bands
}

// #endregion

// #region explore-exploit

func analyzeExploreExploit(records []record.ContentRecord, weightsAt WeightsAtFunc, cfg Config) ExploreExploit {
	out := ExploreExploit{ByDimension: make(map[record.Dimension]float64)}
	if weightsAt == nil {
		out.Verdict = "no weight history available"
		return out
	}

	var total, explored int
	for _, d := range record.Dimensions() {
		var dimTotal, dimExplored int
		for _, rec := range records {
			w, err := weightsAt(d, rec.CreatedAt)
			if err != nil || len(w) == 0 {
				continue
			}
			dimTotal++
			if rec.Arm(d) != bandit.TopArm(w) {
				dimExplored++
			}
		}
		if dimTotal > 0 {
			out.ByDimension[d] = float64(dimExplored) / float64(dimTotal)
		}
		total += dimTotal
		explored += dimExplored
	}
	if total == 0 {
		out.Verdict = "no weight history available"
		return out
	}
	out.Sufficient = true
	out.OverallRatio = float64(explored) / float64(total)
	switch {
	case out.OverallRatio < cfg.ExploreRatioMin:
		out.Verdict = "below healthy band: possible premature convergence"
	case out.OverallRatio > cfg.ExploreRatioMax:
		out.Verdict = "above healthy band: bandit never locks in"
	default:
		out.Verdict = "within healthy band"
	}
	return out
}

// #endregion

// #region outliers

func analyzeOutliers(records []record.ContentRecord, cfg Config) Outliers {
	out := Outliers{ThresholdPP: cfg.OutlierErrorPP}
	for _, rec := range records {
		errPP := rec.PredictedRetention - *rec.ActualRetention
		if errPP > cfg.OutlierErrorPP {
			out.FalsePositives = append(out.FalsePositives, Outlier{
				ID: rec.ID, Predicted: rec.PredictedRetention, Actual: *rec.ActualRetention, ErrorPP: errPP,
			})
		} else if -errPP > cfg.OutlierErrorPP {
			out.FalseNegatives = append(out.FalseNegatives, Outlier{
				ID: rec.ID, Predicted: rec.PredictedRetention, Actual: *rec.ActualRetention, ErrorPP: errPP,
			})
		}
	}
	sort.Slice(out.FalsePositives, func(a, b int) bool {
		return out.FalsePositives[a].ErrorPP > out.FalsePositives[b].ErrorPP
	})
	sort.Slice(out.FalseNegatives, func(a, b int) bool {
		return out.FalseNegatives[a].ErrorPP < out.FalseNegatives[b].ErrorPP
	})
	const keep = 5
	if len(out.FalsePositives) > keep {
		out.FalsePositives = out.FalsePositives[:keep]
	}
	if len(out.FalseNegatives) > keep {
		out.FalseNegatives = out.FalseNegatives[:keep]
	}
	return out
}

// #endregion

// #region categories

func analyzeCategories(records []record.ContentRecord) []CategoryStat {
	byCat := make(map[string][]float64)
	for _, rec := range records {
		if rec.Category == "" {
			continue
		}
		byCat[rec.Category] = append(byCat[rec.Category], *rec.ActualRetention)
	}
	stats := make([]CategoryStat, 0, len(byCat))
	for cat, actuals := range byCat {
		st := CategoryStat{
			Category:     cat,
			N:            len(actuals),
			MeanActual:   mean(actuals),
			MedianActual: median(actuals),
			MinActual:    actuals[0],
			MaxActual:    actuals[0],
		}
		for _, a := range actuals {
			if a < st.MinActual {
				st.MinActual = a
			}
			if a > st.MaxActual {
				st.MaxActual = a
			}
		}
		stats = append(stats, st)
	}
	sort.Slice(stats, func(a, b int) bool { return stats[a].MeanActual > stats[b].MeanActual })
	return stats
}

// #endregion

// #region refine-delta

// analyzeRefineDelta is the anti-Goodhart test. delta = finalScore minus
// firstScore per instrumented record; Pearson(delta, actual) across all of
// them. A high mean delta with no correlation means the scorer is
// optimizing its own rubric, not the audience.
func analyzeRefineDelta(records []record.ContentRecord, cfg Config) RefineDelta {
	var deltas, actuals []float64
	for _, rec := range records {
		if !rec.Instrumented() {
			continue
		}
		deltas = append(deltas, *rec.FinalScore-*rec.FirstScore)
		actuals = append(actuals, *rec.ActualRetention)
	}

	out := RefineDelta{Instrumented: len(deltas)}
	if len(deltas) < cfg.GoodhartMinInstrumented {
		out.Verdict = VerdictInsufficient
		return out
	}
	out.Sufficient = true
	out.MeanDelta = mean(deltas)
	out.Correlation, out.CorrelationValid = pearson(deltas, actuals)

	switch {
	case out.CorrelationValid && out.Correlation > cfg.GoodhartGenuineR:
		out.Verdict = VerdictGenuine
	case out.MeanDelta > cfg.GoodhartMinDelta && (!out.CorrelationValid || out.Correlation < cfg.GoodhartFlagR):
		out.Verdict = VerdictSelfOptimization
	default:
		out.Verdict = VerdictInconclusive
	}
	return out
}

// #endregion
