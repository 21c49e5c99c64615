// Package controller implements ZerecaController: the top-level
// orchestrator wiring the Arbiter, Hypothesis Engine, Shadow Mode,
// Observation Phase, and Emergency Rollback into one mode state
// machine (spec §4.15).
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/arbiter"
	"github.com/neo-z/zereca/pkg/zereca/classifier"
	"github.com/neo-z/zereca/pkg/zereca/detector"
	"github.com/neo-z/zereca/pkg/zereca/flight"
	"github.com/neo-z/zereca/pkg/zereca/hypothesis"
	"github.com/neo-z/zereca/pkg/zereca/observation"
	"github.com/neo-z/zereca/pkg/zereca/rollback"
	"github.com/neo-z/zereca/pkg/zereca/shadow"
	"github.com/neo-z/zereca/pkg/zereca/state"
)

// Mode is a state of the top-level controller state machine.
type Mode int

const (
	ModeStandby Mode = iota
	ModeScanning
	ModeObserving
	ModeLearning
	ModeTesting
	ModeMonitoring
	ModeRollback
)

func (m Mode) String() string {
	switch m {
	case ModeStandby:
		return "STANDBY"
	case ModeScanning:
		return "SCANNING"
	case ModeObserving:
		return "OBSERVING"
	case ModeLearning:
		return "LEARNING"
	case ModeTesting:
		return "TESTING"
	case ModeMonitoring:
		return "MONITORING"
	case ModeRollback:
		return "ROLLBACK"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// detectorConfidenceThreshold gates the SCANNING → OBSERVING
// transition (spec §4.15); the same locked 0.75 invariant the
// Arbiter enforces for emulator confidence.
const detectorConfidenceThreshold = 0.75

// Deps bundles the subsystems ZerecaController wires together. All
// fields except Logger are required; a nil Logger uses slog.Default().
type Deps struct {
	Detector   *detector.Detector
	Engine     *hypothesis.Engine
	Arbiter    *arbiter.Arbiter
	Rollback   *rollback.Manager
	Target     *state.Manager
	Recorder   *flight.Recorder
	Applier    shadow.Applier
	SampleFn   shadow.SampleFunc
	ObserveFn  observation.SampleFunc
	Logger     *slog.Logger
}

// Controller drives the mode state machine described in spec §4.15.
type Controller struct {
	deps Deps

	mode       atomic.Int32
	mu         sync.Mutex
	primary    detector.Info
	baseline   observation.Baseline
	pending    []hypothesis.Hypothesis
	current    hypothesis.Hypothesis
	hasCurrent bool
	logger     *slog.Logger

	onModeChanged func(Mode)
}

// New constructs a Controller in STANDBY.
func New(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{deps: deps, logger: logger.With("component", "controller")}
	c.mode.Store(int32(ModeStandby))

	if deps.Rollback != nil {
		deps.Rollback.OnStateChanged(func(rolledBack bool) {
			if rolledBack {
				c.setMode(ModeRollback)
			}
		})
	}
	return c
}

// OnModeChanged registers a callback fired on every mode transition.
func (c *Controller) OnModeChanged(fn func(Mode)) { c.onModeChanged = fn }

// Mode returns the current mode.
func (c *Controller) Mode() Mode { return Mode(c.mode.Load()) }

func (c *Controller) setMode(m Mode) {
	c.mode.Store(int32(m))
	c.logger.Info("mode transition", "mode", m.String())
	if c.onModeChanged != nil {
		c.onModeChanged(m)
	}
}

// Start enters SCANNING from any mode except ROLLBACK.
func (c *Controller) Start() error {
	if c.Mode() == ModeRollback {
		return fmt.Errorf("controller: cannot start while rollback is active")
	}
	c.setMode(ModeScanning)
	return nil
}

// ScanTick feeds one detector scan. When the primary detection's
// confidence crosses the locked threshold, transitions to OBSERVING.
func (c *Controller) ScanTick(snapshots []detector.ProcessSnapshot) {
	if c.Mode() != ModeScanning {
		return
	}
	c.deps.Detector.Scan(snapshots)
	info, ok := c.deps.Detector.Primary()
	if !ok || info.Confidence < detectorConfidenceThreshold {
		return
	}
	c.mu.Lock()
	c.primary = info
	c.mu.Unlock()
	c.setMode(ModeObserving)
}

// Observe runs the Observation Phase synchronously (the caller is
// expected to run this in its own goroutine; it blocks until the
// phase completes, fails, or ctx is cancelled). On success it
// transitions to LEARNING and generates hypotheses immediately.
func (c *Controller) Observe(ctx context.Context, opts observation.Options) error {
	if c.Mode() != ModeObserving {
		return fmt.Errorf("controller: Observe called outside OBSERVING (mode=%s)", c.Mode())
	}

	return observation.Run(ctx, c.deps.ObserveFn, opts,
		func(b observation.Baseline) {
			c.mu.Lock()
			c.baseline = b
			c.mu.Unlock()
			c.enterLearning()
		},
		func(err error) {
			c.logger.Warn("observation failed", "error", err)
			c.setMode(ModeScanning)
		},
	)
}

func (c *Controller) enterLearning() {
	c.setMode(ModeLearning)

	c.mu.Lock()
	primary := c.primary
	baseline := c.baseline
	c.mu.Unlock()

	hyps := c.deps.Engine.Generate(baseline, primary.Signature)

	c.mu.Lock()
	c.pending = hyps
	c.mu.Unlock()

	c.advanceToNextHypothesis()
}

// advanceToNextHypothesis pops the highest-priority remaining
// hypothesis, evaluates it through the Arbiter, and either starts a
// shadow trial (TESTING) or skips it and tries the next one. With no
// hypotheses left, enters MONITORING.
func (c *Controller) advanceToNextHypothesis() {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		c.setMode(ModeMonitoring)
		return
	}
	next := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()

	proposal := arbiter.Proposal{
		ChangeType:     next.ChangeType,
		TargetProcess:  next.TargetProcess,
		ProposedValue:  next.ProposedValue,
		ExpectedGain:   next.ExpectedGain,
		Confidence:     next.Confidence,
		ShadowTestable: next.ChangeType.ShadowTestable(),
	}

	c.mu.Lock()
	emulatorConfidence := c.primary.Confidence
	c.mu.Unlock()

	decision := c.deps.Arbiter.Evaluate(proposal, emulatorConfidence)
	if !decision.Approved || !proposal.ShadowTestable {
		c.advanceToNextHypothesis()
		return
	}

	c.mu.Lock()
	c.current = next
	c.hasCurrent = true
	c.mu.Unlock()

	c.setMode(ModeTesting)
}

// CurrentHypothesis returns the hypothesis the controller most
// recently entered TESTING for, for a caller driving RunTrial from
// outside (e.g. the CLI's control loop).
func (c *Controller) CurrentHypothesis() (hypothesis.Hypothesis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.hasCurrent
}

// Baseline returns the most recently computed Observation Phase
// baseline.
func (c *Controller) Baseline() observation.Baseline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseline
}

// RunTrial executes a shadow trial for proposal (which the caller
// builds, typically from CurrentHypothesis), then classifies the
// result and either commits it to the Target State or moves on.
func (c *Controller) RunTrial(ctx context.Context, proposal shadow.Proposal, opts shadow.Options, baselineMetrics classifier.Metrics) error {
	if c.Mode() != ModeTesting {
		return fmt.Errorf("controller: RunTrial called outside TESTING (mode=%s)", c.Mode())
	}

	result, err := shadow.StartTrial(ctx, c.deps.Applier, c.deps.SampleFn, proposal, opts)
	if err != nil {
		return err
	}

	arbiterProposal := arbiter.Proposal{
		ChangeType:    proposal.ChangeType,
		TargetProcess: proposal.TargetProcess,
		CurrentValue:  proposal.CurrentValue,
		ProposedValue: proposal.ProposedValue,
	}

	if result.Aborted {
		c.advanceToNextHypothesis()
		return nil
	}

	current := classifier.Metrics{FPS: result.After.FPS}
	verdict := classifier.Classify(baselineMetrics, current, float64(opts.Duration.Milliseconds()), false, false)

	if err := c.deps.Arbiter.RecordOutcome(c.deps.Recorder, arbiterProposal, verdict.Outcome, verdict.Delta); err != nil {
		c.logger.Warn("recordOutcome failed", "error", err)
	}
	c.deps.Engine.UpdateOnOutcome(proposal.ChangeType, proposal.ProposedValue, verdict.Outcome, verdict.Delta)

	if verdict.ShouldCommit {
		current := c.deps.Target.Current()
		if err := c.deps.Target.Patch(func(t *state.Target) {
			applyChange(t, proposal.ChangeType, proposal.ProposedValue)
		}); err != nil {
			c.logger.Error("failed to commit approved change", "error", err, "previous", current)
		}
	}

	c.advanceToNextHypothesis()
	return nil
}

// applyChange projects a change_type/proposed_value pair onto the
// Target State fields the Reconciler drives (spec §4.15 step
// "commit to Target State").
func applyChange(t *state.Target, change types.ChangeType, value string) {
	switch change {
	case types.ChangePowerPlan:
		t.PowerMode = state.PowerMode(value)
	case types.ChangeTimer:
		t.TimerResolution = state.TimerResolution(value)
	case types.ChangeAffinity:
		if t.ProcessAffinity == nil {
			t.ProcessAffinity = make(map[string]string)
		}
		t.ProcessAffinity["game.exe"] = value
	}
}

// Trigger enters ROLLBACK via the bound Rollback manager.
func (c *Controller) Trigger(trigger rollback.Trigger) error {
	return c.deps.Rollback.Execute(trigger)
}

// Acknowledge clears rollback state and returns the controller to
// STANDBY.
func (c *Controller) Acknowledge() {
	c.deps.Rollback.Acknowledge()
	c.setMode(ModeStandby)
}
