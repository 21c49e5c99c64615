package shadow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neo-z/zereca/pkg/types"
)

type fakeApplier struct {
	applied, reverted bool
}

func (f *fakeApplier) Apply(Proposal) error  { f.applied = true; return nil }
func (f *fakeApplier) Revert(Proposal) error { f.reverted = true; return nil }

func withFastSampling(t *testing.T) {
	t.Helper()
	prev := sampleInterval
	sampleInterval = time.Millisecond
	t.Cleanup(func() { sampleInterval = prev })
}

func TestStartTrialRejectsNonShadowTestableType(t *testing.T) {
	_, err := StartTrial(context.Background(), &fakeApplier{}, func() (Metrics, bool) { return Metrics{}, true },
		Proposal{ChangeType: types.ChangeTimer}, Options{})
	require.ErrorIs(t, err, ErrNotShadowTestable)
}

func TestStartTrialComputesPositiveDelta(t *testing.T) {
	withFastSampling(t)
	applier := &fakeApplier{}
	count := 0
	sampleFn := func() (Metrics, bool) {
		count++
		if count == 1 {
			return Metrics{FPS: 60}, true
		}
		return Metrics{FPS: 66}, true
	}

	result, err := StartTrial(context.Background(), applier, sampleFn,
		Proposal{ChangeType: types.ChangePriority, ProposedValue: "HIGH"},
		Options{Stabilization: time.Millisecond, Duration: 5 * time.Millisecond})

	require.NoError(t, err)
	require.True(t, applier.applied)
	require.True(t, applier.reverted)
	require.False(t, result.Aborted)
	require.InDelta(t, 60, result.Before.FPS, 1e-9)
	require.InDelta(t, 0.10, result.PerformanceDelta, 0.01)
}

func TestStartTrialAbortsOnTargetLossBeforeApply(t *testing.T) {
	applier := &fakeApplier{}
	result, err := StartTrial(context.Background(), applier, func() (Metrics, bool) { return Metrics{}, false },
		Proposal{ChangeType: types.ChangeAffinity}, Options{})

	require.NoError(t, err)
	require.True(t, result.Aborted)
	require.Equal(t, "Target emulator exited", result.AbortReason)
	require.False(t, applier.applied)
}

func TestStartTrialAbortsOnTargetLossDuringSampling(t *testing.T) {
	withFastSampling(t)
	applier := &fakeApplier{}
	count := 0
	sampleFn := func() (Metrics, bool) {
		count++
		if count <= 2 {
			return Metrics{FPS: 60}, true
		}
		return Metrics{}, false
	}

	result, err := StartTrial(context.Background(), applier, sampleFn,
		Proposal{ChangeType: types.ChangeIoPriority}, Options{Stabilization: time.Millisecond, Duration: 20 * time.Millisecond})

	require.NoError(t, err)
	require.True(t, result.Aborted)
	require.True(t, applier.applied)
	require.True(t, applier.reverted)
}

func TestOptionsDurationCappedAtMax(t *testing.T) {
	opts := Options{Duration: time.Hour}.withDefaults()
	require.Equal(t, maxDuration, opts.Duration)
}
