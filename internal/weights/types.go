package weights

import (
	"sort"
	"time"

	"github.com/danielpatrickdp/content-autopilot/internal/bandit"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

// #region bound

// Bound is the safety range an arm's weight must stay inside, enforced
// before persistence.
type Bound struct {
	Min float64
	Max float64
}

// #endregion

// #region dimension-state

// DimensionState is the persisted bandit state for one decision dimension.
// Version increments on every committed update; writes compare against the
// version they read so a stale read never silently clobbers a newer write.
type DimensionState struct {
	Dimension  record.Dimension
	Version    int64
	Weights    map[string]float64
	Posteriors map[string]bandit.Posterior
	Bounds     map[string]Bound
	UpdatedAt  time.Time
}

// Arms returns the dimension's arm names in a stable order.
func (s DimensionState) Arms() []string {
	arms := make([]string, 0, len(s.Weights))
	for arm := range s.Weights {
		arms = append(arms, arm)
	}
	sort.Strings(arms)
	return arms
}

// #endregion

// #region recovery-state

// RecoveryState is the process-wide fallback tracker. Active means the mode
// dimension is force-overridden to the recovery preset; the flag clears
// only after a sustained run of acceptable outcomes.
type RecoveryState struct {
	Active         bool
	ConsecutiveLow int
	UpdatedAt      time.Time
}

// #endregion

// #region history

// HistoryEntry is one committed dimension update, kept for audit and for
// reconstructing the weights in effect at a past instant.
type HistoryEntry struct {
	Dimension  record.Dimension
	Version    int64
	OldWeights map[string]float64
	NewWeights map[string]float64
	Action     string
	Reason     string
	CreatedAt  time.Time
}

// #endregion
