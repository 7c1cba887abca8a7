package record

import "time"

// #region status

// Status is the lifecycle state of a content record.
type Status string

const (
	StatusPending  Status = "pending"  // generated, not yet published
	StatusLinked   Status = "linked"   // published, awaiting analytics
	StatusComplete Status = "complete" // analytics measured
	StatusFailed   Status = "failed"   // measurement never became available
	StatusTest     Status = "test"     // test run, never a learning signal
)

// #endregion

// #region dimension

// Dimension is one categorical production parameter tuned by the controller.
type Dimension string

const (
	DimensionMode     Dimension = "mode"
	DimensionTitle    Dimension = "title"
	DimensionHook     Dimension = "hook"
	DimensionCategory Dimension = "category"
)

// Dimensions returns all tuned dimensions in a stable order.
func Dimensions() []Dimension {
	return []Dimension{DimensionMode, DimensionTitle, DimensionHook, DimensionCategory}
}

// #endregion

// #region content-record

// ContentRecord is one generated item: the parameters chosen for it,
// the scoring instrumentation from the generation pipeline, and the
// measured outcome once analytics arrive.
type ContentRecord struct {
	ID          string
	CreatedAt   time.Time
	PublishedAt *time.Time // nil until published

	// Decision parameters drawn from the selection weights at generation time.
	Mode       string
	TitleStyle string
	HookStyle  string
	Category   string

	// Quality-scoring instrumentation. FirstScore/FinalScore are nil for
	// records produced before instrumentation was added.
	FirstScore  *float64
	FinalScore  *float64
	RefineCount int

	// Model-estimated retention percentage, produced before publish.
	PredictedRetention float64

	// Measured outcome. Set iff Status == StatusComplete.
	ActualRetention *float64
	Views           *int64
	SwipeRate       *float64

	// Eligible is true only for records that are a valid learning signal.
	// Test runs, fallback executions, and manual overrides carry false.
	Eligible bool

	Status Status
}

// #endregion

// #region arm

// Arm returns the chosen value for the given dimension.
func (r ContentRecord) Arm(d Dimension) string {
	switch d {
	case DimensionMode:
		return r.Mode
	case DimensionTitle:
		return r.TitleStyle
	case DimensionHook:
		return r.HookStyle
	case DimensionCategory:
		return r.Category
	}
	return ""
}

// #endregion

// #region helpers

// HasOutcome reports whether the record carries a complete measured outcome.
func (r ContentRecord) HasOutcome() bool {
	return r.Status == StatusComplete && r.ActualRetention != nil && r.Views != nil && r.SwipeRate != nil
}

// Instrumented reports whether both scoring snapshots are present.
func (r ContentRecord) Instrumented() bool {
	return r.FirstScore != nil && r.FinalScore != nil
}

// Age returns the record's age at the given instant, measured from the
// publish time when available, otherwise from creation.
func (r ContentRecord) Age(now time.Time) time.Duration {
	ref := r.CreatedAt
	if r.PublishedAt != nil {
		ref = *r.PublishedAt
	}
	return now.Sub(ref)
}

// #endregion
