package observation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func withFastSampling(t *testing.T) {
	t.Helper()
	prev := sampleInterval
	sampleInterval = time.Millisecond
	t.Cleanup(func() { sampleInterval = prev })
}

func TestRunEarlyExitsOnStability(t *testing.T) {
	withFastSampling(t)

	var n int32
	sampleFn := func() (Sample, bool) {
		atomic.AddInt32(&n, 1)
		return Sample{FPS: 60, FrameTimeMs: 16.6, CPU: 0.3, GPU: 0.2, MemPressure: 0.1}, true
	}

	var got Baseline
	var completed bool
	err := Run(context.Background(), sampleFn, Options{MinDuration: 5 * time.Millisecond, MaxDuration: time.Second, StabilityCV: 0.05},
		func(b Baseline) { got = b; completed = true },
		func(error) { t.Fatal("unexpected failure") },
	)
	require.NoError(t, err)
	require.True(t, completed)
	require.InDelta(t, 60, got.MeanFPS, 1e-9)
	require.InDelta(t, 0, got.FPSVariance, 1e-9)
}

func TestRunAbortsOnTargetLoss(t *testing.T) {
	withFastSampling(t)

	calls := 0
	sampleFn := func() (Sample, bool) {
		calls++
		if calls > 3 {
			return Sample{}, false
		}
		return Sample{FPS: 60}, true
	}

	var failedErr error
	err := Run(context.Background(), sampleFn, Options{MinDuration: time.Hour, MaxDuration: time.Hour},
		func(Baseline) { t.Fatal("unexpected completion") },
		func(e error) { failedErr = e },
	)
	require.ErrorIs(t, err, ErrTargetLost)
	require.ErrorIs(t, failedErr, ErrTargetLost)
}

func TestRunHardCapsAtMaxDuration(t *testing.T) {
	withFastSampling(t)

	// FPS varies enough that stability never triggers; only the max
	// duration cap should end the run.
	toggle := false
	sampleFn := func() (Sample, bool) {
		toggle = !toggle
		if toggle {
			return Sample{FPS: 30}, true
		}
		return Sample{FPS: 90}, true
	}

	var completed bool
	err := Run(context.Background(), sampleFn, Options{MinDuration: time.Millisecond, MaxDuration: 20 * time.Millisecond, StabilityCV: 0.01},
		func(Baseline) { completed = true },
		func(error) { t.Fatal("unexpected failure") },
	)
	require.NoError(t, err)
	require.True(t, completed)
}

func TestCoefficientOfVariationZeroMeanIsZero(t *testing.T) {
	require.Zero(t, coefficientOfVariation([]float64{0, 0, 0}))
}
