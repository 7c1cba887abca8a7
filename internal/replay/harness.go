// Package replay re-runs a recorded content history through the full
// update pipeline against a throwaway in-memory database, for debugging
// weight trajectories and validating tuning changes offline.
package replay

import (
	"fmt"

	"github.com/danielpatrickdp/content-autopilot/internal/config"
	"github.com/danielpatrickdp/content-autopilot/internal/engine"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
	"github.com/danielpatrickdp/content-autopilot/internal/weights"
)

// #region types

// CycleOutcome is the result of one replayed cycle.
type CycleOutcome struct {
	CycleID string
	Result  engine.CycleResult
	// Weights per dimension after the cycle committed.
	Weights map[record.Dimension]map[string]float64
}

// Summary aggregates a replay run.
type Summary struct {
	TotalCycles     int
	Updated         int
	Held            int // no_change + no_samples + insufficient_data + log_only
	RecoveryEntered int
	Mismatches      []Mismatch
}

// Mismatch is one divergence from the fixture's expected actions.
type Mismatch struct {
	CycleID   string
	Dimension record.Dimension
	Expected  string
	Actual    string
}

// #endregion types

// #region run

// Run replays a fixture from scratch: fresh in-memory database, default
// configuration, records inserted up front, cycles executed in order.
func Run(f *Fixture, cfg config.Config) ([]CycleOutcome, Summary, error) {
	store, err := record.NewStore(":memory:")
	if err != nil {
		return nil, Summary{}, fmt.Errorf("open replay db: %w", err)
	}
	defer store.Close()
	// A pooled second connection would see its own empty in-memory
	// database, so the replay pins everything to one.
	store.DB().SetMaxOpenConns(1)

	weightStore, err := weights.NewStore(store.DB())
	if err != nil {
		return nil, Summary{}, fmt.Errorf("open weight store: %w", err)
	}

	for _, fr := range f.Records {
		rec, err := fr.ToContentRecord()
		if err != nil {
			return nil, Summary{}, err
		}
		if err := store.Insert(rec); err != nil {
			return nil, Summary{}, fmt.Errorf("insert fixture record: %w", err)
		}
	}

	eng := engine.New(store, weightStore, cfg)
	if err := eng.Seed(); err != nil {
		return nil, Summary{}, fmt.Errorf("seed weights: %w", err)
	}

	outcomes := make([]CycleOutcome, 0, len(f.Cycles))
	for _, fc := range f.Cycles {
		at, err := fc.Time()
		if err != nil {
			return nil, Summary{}, err
		}
		result, err := eng.RunCycle(at)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("cycle %s: %w", fc.CycleID, err)
		}
		outcome := CycleOutcome{
			CycleID: fc.CycleID,
			Result:  result,
			Weights: make(map[record.Dimension]map[string]float64),
		}
		for _, d := range record.Dimensions() {
			w, err := weightStore.GetSelectionWeights(d)
			if err != nil {
				return nil, Summary{}, fmt.Errorf("cycle %s: read weights %s: %w", fc.CycleID, d, err)
			}
			outcome.Weights[d] = w
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, summarize(f, outcomes), nil
}

func summarize(f *Fixture, outcomes []CycleOutcome) Summary {
	s := Summary{TotalCycles: len(outcomes)}

	expected := make(map[string]map[string]string, len(f.ExpectedResults))
	for _, er := range f.ExpectedResults {
		expected[er.CycleID] = er.Actions
	}

	for _, o := range outcomes {
		for d, dr := range o.Result.Dimensions {
			switch dr.Action {
			case engine.ActionUpdated, engine.ActionRecoveryOverride:
				s.Updated++
			default:
				s.Held++
			}
			if want, ok := expected[o.CycleID][string(d)]; ok && want != dr.Action {
				s.Mismatches = append(s.Mismatches, Mismatch{
					CycleID:   o.CycleID,
					Dimension: d,
					Expected:  want,
					Actual:    dr.Action,
				})
			}
		}
		if o.Result.Recovery.Entered {
			s.RecoveryEntered++
		}
	}
	return s
}

// #endregion run