package controller

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/arbiter"
	"github.com/neo-z/zereca/pkg/zereca/classifier"
	"github.com/neo-z/zereca/pkg/zereca/detector"
	"github.com/neo-z/zereca/pkg/zereca/flight"
	"github.com/neo-z/zereca/pkg/zereca/hypothesis"
	"github.com/neo-z/zereca/pkg/zereca/observation"
	"github.com/neo-z/zereca/pkg/zereca/probation"
	"github.com/neo-z/zereca/pkg/zereca/rollback"
	"github.com/neo-z/zereca/pkg/zereca/shadow"
	"github.com/neo-z/zereca/pkg/zereca/state"
)

type fakeApplier struct{}

func (fakeApplier) Apply(shadow.Proposal) error  { return nil }
func (fakeApplier) Revert(shadow.Proposal) error { return nil }

func newTestController(t *testing.T) (*Controller, Deps) {
	t.Helper()
	dir := t.TempDir()

	target, err := state.NewManager(filepath.Join(dir, "target_state.json"))
	require.NoError(t, err)
	recorder := flight.NewRecorder(dir)
	ledger, err := probation.NewLedger(filepath.Join(dir, "probation.json"))
	require.NoError(t, err)
	rb := rollback.NewManager(target, recorder, nil)
	a := arbiter.New(ledger, rb, func() types.PrivilegeTier { return types.PrivilegeOperator }, func() types.SystemContext { return types.SystemContext{} }, nil)
	engine := hypothesis.New(hypothesis.DefaultDimensions("game.exe"), 1)
	engine.SetExplorationRate(0)
	det := detector.New([]detector.Signature{{Name: "bs", ExecutableNames: []string{"hd.exe"}, BaseConfidence: 0.8}})

	deps := Deps{
		Detector: det,
		Engine:   engine,
		Arbiter:  a,
		Rollback: rb,
		Target:   target,
		Recorder: recorder,
		Applier:  fakeApplier{},
		SampleFn: func() (shadow.Metrics, bool) { return shadow.Metrics{FPS: 66}, true },
		ObserveFn: func() (observation.Sample, bool) {
			return observation.Sample{FPS: 60, FrameTimeMs: 16.6}, true
		},
	}
	return New(deps), deps
}

func TestControllerStartEntersScanning(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Start())
	require.Equal(t, ModeScanning, c.Mode())
}

func TestControllerScanTickEntersObservingAboveThreshold(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Start())
	c.ScanTick([]detector.ProcessSnapshot{{PID: 1, ExecutableName: "hd.exe"}})
	require.Equal(t, ModeObserving, c.Mode())
}

func TestControllerObserveEntersLearningThenTesting(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Start())
	c.ScanTick([]detector.ProcessSnapshot{{PID: 1, ExecutableName: "hd.exe"}})
	require.Equal(t, ModeObserving, c.Mode())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Observe(ctx, observation.Options{MinDuration: time.Millisecond, MaxDuration: 10 * time.Millisecond})
	require.NoError(t, err)

	// The top-priority hypothesis (Priority) is approved and
	// shadow-testable, so the controller should have progressed past
	// LEARNING into TESTING.
	require.Equal(t, ModeTesting, c.Mode())
}

func TestControllerRollbackTriggerEntersRollbackMode(t *testing.T) {
	c, _ := newTestController(t)
	require.NoError(t, c.Start())

	require.NoError(t, c.Trigger(rollback.TriggerThermalRunaway))
	require.Equal(t, ModeRollback, c.Mode())

	c.Acknowledge()
	require.Equal(t, ModeStandby, c.Mode())
}

func TestControllerRunTrialCompletesFromTesting(t *testing.T) {
	c, deps := newTestController(t)
	require.NoError(t, c.Start())
	c.ScanTick([]detector.ProcessSnapshot{{PID: 1, ExecutableName: "hd.exe"}})

	// Observe and the trial each wait at least one 500ms sampling tick.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Observe(ctx, observation.Options{MinDuration: time.Millisecond, MaxDuration: 10 * time.Millisecond}))
	require.Equal(t, ModeTesting, c.Mode())

	err := c.RunTrial(ctx, shadow.Proposal{ChangeType: types.ChangePriority, TargetProcess: "game.exe", CurrentValue: "NORMAL", ProposedValue: "HIGH"},
		shadow.Options{Stabilization: time.Millisecond, Duration: 5 * time.Millisecond},
		classifier.Metrics{FPS: 60, FrameTimeMs: 16.6, FPSVariance: 4})
	require.NoError(t, err)

	current := deps.Target.Current()
	_ = current // PowerMode-type changes only committed for PowerPlan/Timer/Affinity proposals; Priority has no Target State projection.
}
