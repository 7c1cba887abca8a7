package calibration

import (
	"time"

	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

// #region config

// Config holds sample-size minimums and decision thresholds for the
// diagnostics. Every analysis refuses to emit a verdict below its minimum
// and reports insufficient data instead.
type Config struct {
	MinRecords   int // minimum eligible complete records for any report
	MinPerBucket int // minimum records per band/bucket for a bucket verdict

	// QualityThreshold splits final scores for the score-band comparison.
	QualityThreshold float64

	// OutlierErrorPP flags records where |predicted - actual| exceeds this
	// many percentage points.
	OutlierErrorPP float64

	// Goodhart test thresholds for the refine-delta analysis.
	GoodhartMinInstrumented int     // minimum records with both scores and outcome
	GoodhartGenuineR        float64 // correlation above this → signal genuine
	GoodhartFlagR           float64 // correlation below this (with inflation) → self-optimization
	GoodhartMinDelta        float64 // mean delta above this counts as score inflation

	// Healthy band for the explore ratio; outside it the verdict warns of
	// premature convergence or a bandit that never locks in.
	ExploreRatioMin float64
	ExploreRatioMax float64
}

// DefaultConfig returns the production diagnostic thresholds.
func DefaultConfig() Config {
	return Config{
		MinRecords:              10,
		MinPerBucket:            3,
		QualityThreshold:        9.0,
		OutlierErrorPP:          20,
		GoodhartMinInstrumented: 5,
		GoodhartGenuineR:        0.3,
		GoodhartFlagR:           0.1,
		GoodhartMinDelta:        0.5,
		ExploreRatioMin:         0.1,
		ExploreRatioMax:         0.3,
	}
}

// #endregion

// #region report

// Report is the full diagnostic output. Pure function of the historical
// records; generating it never mutates state.
type Report struct {
	GeneratedAt time.Time
	N           int
	Status      string // "ready" | "insufficient_data"

	Correlations   Correlations
	Calibration    CalibrationCurve
	RefineImpact   RefineImpact
	ScoreBands     ScoreBands
	ExploreExploit ExploreExploit
	Outliers       Outliers
	Categories     []CategoryStat
	RefineDelta    RefineDelta
}

// Correlations answers whether the predictive signals rank outcomes.
type Correlations struct {
	Sufficient         bool
	N                  int
	PredictedVsActual  CorrelationStat
	FinalScoreVsActual CorrelationStat
}

// CorrelationStat is one rank-correlation result with its reading.
type CorrelationStat struct {
	Rho            float64
	Valid          bool // false when a series had no variance
	Interpretation string
}

// CalibrationCurve groups records into predicted-retention bands and
// measures the bias per band and overall.
type CalibrationCurve struct {
	Bands         []CalibrationBand
	OverallBiasPP float64 // weighted mean(predicted - actual), percentage points
	Direction     string  // "optimistic" | "pessimistic" | "calibrated"
}

// CalibrationBand is one predicted-retention band.
type CalibrationBand struct {
	Label         string
	N             int
	Sufficient    bool
	MeanPredicted float64
	MeanActual    float64
	BiasPP        float64 // predicted - actual; positive = overconfident
}

// RefineImpact groups outcomes by refine-count bucket.
type RefineImpact struct {
	Buckets        []RefineBucket
	DecliningCurve bool // higher refine buckets performing worse
	Verdict        string
}

// RefineBucket is one refine-count bucket (0,1,2,3,4+).
type RefineBucket struct {
	Label        string
	N            int
	Sufficient   bool
	MeanActual   float64
	MedianActual float64
}

// ScoreBands compares outcomes above vs below the quality threshold.
type ScoreBands struct {
	Sufficient  bool
	AboveN      int
	BelowN      int
	MeanAbove   float64
	MeanBelow   float64
	AdvantagePP float64 // above minus below
	Verdict     string
}

// ExploreExploit measures how often the chosen arm was not the
// highest-weighted arm at selection time.
type ExploreExploit struct {
	Sufficient   bool
	ByDimension  map[record.Dimension]float64
	OverallRatio float64
	Verdict      string
}

// Outliers lists the most dangerously wrong predictions.
type Outliers struct {
	ThresholdPP    float64
	FalsePositives []Outlier // predicted high, landed low
	FalseNegatives []Outlier // predicted low, landed high
}

// Outlier is one record whose prediction missed badly.
type Outlier struct {
	ID        string
	Predicted float64
	Actual    float64
	ErrorPP   float64
}

// CategoryStat is one row of the category heatmap.
type CategoryStat struct {
	Category     string
	N            int
	MeanActual   float64
	MedianActual float64
	MinActual    float64
	MaxActual    float64
}

// RefineDelta is the anti-Goodhart test: does the score gain from
// refinement predict real outcomes, or is the scorer rewarding itself?
type RefineDelta struct {
	Instrumented     int
	Sufficient       bool
	MeanDelta        float64
	Correlation      float64
	CorrelationValid bool
	// Verdict is one of "genuine", "self_optimization", "inconclusive",
	// "insufficient_data".
	Verdict string
}

// Verdict values for RefineDelta.
const (
	VerdictGenuine          = "genuine"
	VerdictSelfOptimization = "self_optimization"
	VerdictInconclusive     = "inconclusive"
	VerdictInsufficient     = "insufficient_data"
)

// #endregion
