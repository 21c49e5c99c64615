package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neo-z/zereca/pkg/types"
)

func TestClassifyThermalEventIsAlwaysNegativeSafety(t *testing.T) {
	r := Classify(Metrics{FPS: 60}, Metrics{FPS: 120}, 20000, false, true)
	require.Equal(t, types.OutcomeNegativeSafety, r.Outcome)
	require.True(t, r.ShouldRollback)
	require.Equal(t, types.SeverityCritical, r.ProbationSeverity)
}

func TestClassifyCrashIsAlwaysNegativeStability(t *testing.T) {
	r := Classify(Metrics{FPS: 60}, Metrics{FPS: 120}, 20000, true, false)
	require.Equal(t, types.OutcomeNegativeStability, r.Outcome)
	require.True(t, r.ShouldRollback)
	require.Equal(t, types.SeverityMedium, r.ProbationSeverity)
}

// S3 — Arbiter confidence gate continuation: the classifier side of
// the scenario (delta ≈ 0.127, confidence ≈ 0.9, shouldCommit).
func TestClassifyPositiveOutcome(t *testing.T) {
	baseline := Metrics{FPS: 60, FrameTimeMs: 16.6, FPSVariance: 4.0}
	current := Metrics{FPS: 66, FrameTimeMs: 15.089, FPSVariance: 3.0}

	r := Classify(baseline, current, 10000, false, false)
	require.Equal(t, types.OutcomePositive, r.Outcome)
	require.InDelta(t, 0.127, r.Delta, 0.01)
	require.InDelta(t, 0.9, r.Confidence, 1e-9)
	require.True(t, r.ShouldCommit)
}

func TestClassifyNegativeStabilityFromDelta(t *testing.T) {
	baseline := Metrics{FPS: 60, FrameTimeMs: 16.6, FPSVariance: 4.0}
	current := Metrics{FPS: 30, FrameTimeMs: 33.2, FPSVariance: 10.0}

	r := Classify(baseline, current, 10000, false, false)
	require.Equal(t, types.OutcomeNegativeStability, r.Outcome)
	require.True(t, r.ShouldRollback)
	require.Equal(t, types.SeverityLow, r.ProbationSeverity)
}

func TestClassifyNeutralWhenInsufficientDelta(t *testing.T) {
	baseline := Metrics{FPS: 60, FrameTimeMs: 16.6, FPSVariance: 4.0}
	current := Metrics{FPS: 60.5, FrameTimeMs: 16.5, FPSVariance: 3.95}

	r := Classify(baseline, current, 10000, false, false)
	require.Equal(t, types.OutcomeNeutral, r.Outcome)
	require.True(t, r.ShouldRevert)
	require.Zero(t, r.ProbationSeverity)
}

func TestClassifyDurationRatioClampedToOne(t *testing.T) {
	r := Classify(Metrics{FPS: 60, FrameTimeMs: 16.6, FPSVariance: 4}, Metrics{FPS: 70, FrameTimeMs: 14, FPSVariance: 2}, 60000, false, false)
	require.InDelta(t, 0.9, r.Confidence, 1e-9)
}
