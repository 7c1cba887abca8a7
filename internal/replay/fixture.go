package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a record
// history plus a sequence of cycle instants, with the expected action per
// dimension per cycle.
type Fixture struct {
	Description     string                  `json:"description"`
	Records         []FixtureRecord         `json:"records"`
	Cycles          []FixtureCycle          `json:"cycles"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureRecord mirrors record.ContentRecord with JSON tags. Optional
// outcome fields stay pointers so a fixture can describe records that
// never completed.
type FixtureRecord struct {
	ID                 string   `json:"id"`
	CreatedAt          string   `json:"created_at"`
	PublishedAt        *string  `json:"published_at,omitempty"`
	Mode               string   `json:"mode"`
	TitleStyle         string   `json:"title_style"`
	HookStyle          string   `json:"hook_style"`
	Category           string   `json:"category"`
	FirstScore         *float64 `json:"first_score,omitempty"`
	FinalScore         *float64 `json:"final_score,omitempty"`
	RefineCount        int      `json:"refine_count"`
	PredictedRetention float64  `json:"predicted_retention"`
	ActualRetention    *float64 `json:"actual_retention,omitempty"`
	Views              *int64   `json:"views,omitempty"`
	SwipeRate          *float64 `json:"swipe_rate,omitempty"`
	Eligible           bool     `json:"eligible"`
	Status             string   `json:"status"`
}

// FixtureCycle is one scheduled cycle instant.
type FixtureCycle struct {
	CycleID string `json:"cycle_id"`
	At      string `json:"at"`
}

// FixtureExpectedResult captures the expected per-dimension action for a
// cycle, keyed by dimension name.
type FixtureExpectedResult struct {
	CycleID string            `json:"cycle_id"`
	Actions map[string]string `json:"actions"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToContentRecord converts a FixtureRecord to a domain ContentRecord.
func (fr *FixtureRecord) ToContentRecord() (record.ContentRecord, error) {
	created, err := time.Parse(time.RFC3339, fr.CreatedAt)
	if err != nil {
		return record.ContentRecord{}, fmt.Errorf("record %s: bad created_at: %w", fr.ID, err)
	}
	rec := record.ContentRecord{
		ID:                 fr.ID,
		CreatedAt:          created,
		Mode:               fr.Mode,
		TitleStyle:         fr.TitleStyle,
		HookStyle:          fr.HookStyle,
		Category:           fr.Category,
		FirstScore:         fr.FirstScore,
		FinalScore:         fr.FinalScore,
		RefineCount:        fr.RefineCount,
		PredictedRetention: fr.PredictedRetention,
		ActualRetention:    fr.ActualRetention,
		Views:              fr.Views,
		SwipeRate:          fr.SwipeRate,
		Eligible:           fr.Eligible,
		Status:             record.Status(fr.Status),
	}
	if fr.PublishedAt != nil {
		published, err := time.Parse(time.RFC3339, *fr.PublishedAt)
		if err != nil {
			return record.ContentRecord{}, fmt.Errorf("record %s: bad published_at: %w", fr.ID, err)
		}
		rec.PublishedAt = &published
	}
	return rec, nil
}

// Time parses the cycle instant.
func (fc *FixtureCycle) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, fc.At)
	if err != nil {
		return time.Time{}, fmt.Errorf("cycle %s: bad at: %w", fc.CycleID, err)
	}
	return t, nil
}

// #endregion fixture-loader
