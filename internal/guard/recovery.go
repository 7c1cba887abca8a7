package guard

import (
	"github.com/danielpatrickdp/content-autopilot/internal/record"
	"github.com/danielpatrickdp/content-autopilot/internal/weights"
)

// #region recovery-config

// RecoveryConfig controls the hard fallback that overrides the mode
// dimension after a sustained run of poor outcomes.
type RecoveryConfig struct {
	// FloorRetention is the retention percentage below which an outcome
	// counts as a failure for the consecutive check.
	FloorRetention float64
	// EnterAfter is the number of consecutive failures that activates
	// recovery.
	EnterAfter int
	// ClearAfter is the number of consecutive acceptable outcomes required
	// to deactivate it again.
	ClearAfter int
	// ModePreset is the forced mode distribution while recovery is active.
	ModePreset map[string]float64
}

// DefaultRecoveryConfig returns the production recovery tuning: all weight
// on the conservative mode arm after five consecutive sub-15% outcomes,
// cleared by three acceptable ones.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		FloorRetention: 15.0,
		EnterAfter:     5,
		ClearAfter:     3,
		ModePreset:     map[string]float64{"quality": 1.0, "fast": 0.0},
	}
}

// #endregion

// #region evaluate

// RecoveryDecision is the outcome of one recovery evaluation.
type RecoveryDecision struct {
	State   weights.RecoveryState
	Entered bool
	Cleared bool
}

// EvaluateRecovery inspects the most recent eligible complete records
// (newest first) and decides whether recovery mode should activate, stay,
// or clear. It is a pure function of the previous state and the history.
func EvaluateRecovery(prev weights.RecoveryState, recent []record.ContentRecord, cfg RecoveryConfig) RecoveryDecision {
	consecutiveLow := 0
	for _, rec := range recent {
		if rec.ActualRetention == nil {
			break
		}
		if *rec.ActualRetention < cfg.FloorRetention {
			consecutiveLow++
		} else {
			break
		}
	}

	consecutiveOK := 0
	for _, rec := range recent {
		if rec.ActualRetention == nil {
			break
		}
		if *rec.ActualRetention >= cfg.FloorRetention {
			consecutiveOK++
		} else {
			break
		}
	}

	next := weights.RecoveryState{
		Active:         prev.Active,
		ConsecutiveLow: consecutiveLow,
	}

	decision := RecoveryDecision{}
	if !prev.Active && consecutiveLow >= cfg.EnterAfter {
		next.Active = true
		decision.Entered = true
	}
	if prev.Active && consecutiveOK >= cfg.ClearAfter {
		next.Active = false
		decision.Cleared = true
	}
	decision.State = next
	return decision
}

// ApplyRecoveryOverride replaces a mode proposal with the recovery preset.
// It is a hard override, not a blend: it always wins over bandit output.
func ApplyRecoveryOverride(proposed map[string]float64, cfg RecoveryConfig) map[string]float64 {
	out := make(map[string]float64, len(proposed))
	for arm := range proposed {
		out[arm] = cfg.ModePreset[arm]
	}
	renormalize(out)
	return out
}

// #endregion
