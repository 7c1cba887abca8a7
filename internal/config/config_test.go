package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefaultWeightsNormalized(t *testing.T) {
	cfg := Default()
	for _, d := range record.Dimensions() {
		w := cfg.DefaultWeights(d)
		var sum float64
		for _, v := range w {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "dimension %s", d)
	}
}

func TestValidateRejectsInfeasibleBounds(t *testing.T) {
	cfg := Default()
	dim := cfg.Dimensions[string(record.DimensionMode)]
	dim.Arms["quality"] = ArmConfig{Weight: 0.7, Min: 0.8, Max: 0.9}
	dim.Arms["fast"] = ArmConfig{Weight: 0.3, Min: 0.5, Max: 0.7}
	cfg.Dimensions[string(record.DimensionMode)] = dim

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "infeasible")
}

func TestValidateRejectsBadDeltaCap(t *testing.T) {
	cfg := Default()
	cfg.Guard.MaxDailyChange = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Guard.MaxDailyChange = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownPresetArm(t *testing.T) {
	cfg := Default()
	cfg.Recovery.ModePreset = map[string]float64{"turbo": 1.0}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode_preset")
}

func TestValidateRejectsMissingDimension(t *testing.T) {
	cfg := Default()
	delete(cfg.Dimensions, string(record.DimensionHook))
	assert.Error(t, cfg.Validate())
}

func TestBoundsConversion(t *testing.T) {
	cfg := Default()
	b := cfg.Bounds(record.DimensionMode)
	assert.InDelta(t, 0.3, b["quality"].Min, 1e-9)
	assert.InDelta(t, 0.9, b["quality"].Max, 1e-9)
}

func TestTuningConversions(t *testing.T) {
	cfg := Default()
	assert.InDelta(t, 0.25, cfg.BanditConfig().Temperature, 1e-9)
	assert.InDelta(t, 0.15, cfg.GuardConfig().MaxDailyChange, 1e-9)
	assert.Equal(t, 5, cfg.RecoveryConfig().EnterAfter)
	assert.Equal(t, 10, cfg.CalibrationConfig().MinRecords)
	assert.Equal(t, float64(42*24), cfg.Window().Hours())
}
