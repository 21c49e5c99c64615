package hypothesis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/observation"
)

func TestGenerateReturnsOneHypothesisPerDimension(t *testing.T) {
	e := New(DefaultDimensions("game.exe"), 1)
	e.SetExplorationRate(0) // deterministic: always best-known value

	hyps := e.Generate(observation.Baseline{}, "")
	require.Len(t, hyps, 5)
}

func TestGenerateSortsByPriorityDescending(t *testing.T) {
	e := New(DefaultDimensions("game.exe"), 1)
	e.SetExplorationRate(0)

	hyps := e.Generate(observation.Baseline{}, "")
	for i := 1; i < len(hyps); i++ {
		require.GreaterOrEqual(t, hyps[i-1].Priority, hyps[i].Priority)
	}
}

func TestGenerateBoostsPriorityGainUnderHighCPU(t *testing.T) {
	e := New(DefaultDimensions("game.exe"), 1)
	e.SetExplorationRate(0)

	low := e.Generate(observation.Baseline{MeanCPU: 0.3}, "")
	high := e.Generate(observation.Baseline{MeanCPU: 0.95}, "")

	var lowGain, highGain float64
	for _, h := range low {
		if h.ChangeType == types.ChangePriority {
			lowGain = h.ExpectedGain
		}
	}
	for _, h := range high {
		if h.ChangeType == types.ChangePriority {
			highGain = h.ExpectedGain
		}
	}
	require.Greater(t, highGain, lowGain)
}

func TestGenerateEmulatorBoostsConfidence(t *testing.T) {
	e := New(DefaultDimensions("game.exe"), 1)
	e.SetExplorationRate(0)

	without := e.Generate(observation.Baseline{}, "")
	with := e.Generate(observation.Baseline{}, "bluestacks")

	require.Greater(t, with[0].Confidence, without[0].Confidence-1e-9)
}

func TestUpdateOnOutcomeAdjustsPriors(t *testing.T) {
	e := New(DefaultDimensions("game.exe"), 1)

	e.UpdateOnOutcome(types.ChangePriority, "HIGH", types.OutcomePositive, 0.12)
	e.UpdateOnOutcome(types.ChangePriority, "HIGH", types.OutcomePositive, 0.10)

	key := priorKey{types.ChangePriority, "HIGH"}
	require.InDelta(t, 0.11, e.gainPrior[key], 1e-9)
	require.InDelta(t, 0.7, e.confPrior[key], 1e-9)
}

func TestUpdateOnOutcomeNegativeDropsConfidenceToZeroFloor(t *testing.T) {
	e := New(DefaultDimensions("game.exe"), 1)
	e.UpdateOnOutcome(types.ChangeTimer, "1ms", types.OutcomeNegativeStability, -0.2)
	e.UpdateOnOutcome(types.ChangeTimer, "1ms", types.OutcomeNegativeSafety, -0.4)

	key := priorKey{types.ChangeTimer, "1ms"}
	require.GreaterOrEqual(t, e.confPrior[key], 0.0)
}

func TestResetPriorsClearsState(t *testing.T) {
	e := New(DefaultDimensions("game.exe"), 1)
	e.UpdateOnOutcome(types.ChangePriority, "HIGH", types.OutcomePositive, 0.1)
	e.ResetPriors()

	require.Empty(t, e.trials)
	require.Empty(t, e.gainPrior)
	require.Empty(t, e.confPrior)
}
