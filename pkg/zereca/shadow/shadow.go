// Package shadow implements Shadow Mode: a reversible A/B trial
// executor for process-scoped changes (spec §4.13).
package shadow

import (
	"context"
	"errors"
	"time"

	"github.com/neo-z/zereca/pkg/types"
)

const (
	defaultStabilization = 5 * time.Second
	defaultDuration       = 30 * time.Second
	maxDuration           = 60 * time.Second
)

// sampleInterval is a var rather than a const so tests can shrink the
// 500ms cadence without waiting out real trial durations.
var sampleInterval = 500 * time.Millisecond

// ErrNotShadowTestable is returned when startTrial is asked to trial
// a change type outside {Priority, IoPriority, Affinity}.
var ErrNotShadowTestable = errors.New("shadow: change type is not shadow-testable")

// Metrics is the per-sample snapshot the trial compares before/after.
type Metrics struct {
	FPS float64
}

// Proposal is the minimal shape Shadow Mode needs from an
// arbiter.Proposal to run a trial (kept decoupled to avoid an import
// cycle between shadow and arbiter).
type Proposal struct {
	ChangeType    types.ChangeType
	TargetProcess string
	CurrentValue  string
	ProposedValue string
}

// Result is the outcome of a completed or aborted trial.
type Result struct {
	Proposal          Proposal
	Before            Metrics
	After             Metrics
	PerformanceDelta  float64
	Aborted           bool
	AbortReason       string
}

// Applier applies and reverts a process-scoped change. The real
// implementation drives the platform layer; tests provide a fake.
type Applier interface {
	Apply(p Proposal) error
	Revert(p Proposal) error
}

// SampleFunc returns current metrics for the target process, and
// false if it has disappeared.
type SampleFunc func() (Metrics, bool)

// Options overrides the documented defaults.
type Options struct {
	Stabilization time.Duration
	Duration      time.Duration
}

func (o Options) withDefaults() Options {
	if o.Stabilization <= 0 {
		o.Stabilization = defaultStabilization
	}
	if o.Duration <= 0 {
		o.Duration = defaultDuration
	}
	if o.Duration > maxDuration {
		o.Duration = maxDuration
	}
	return o
}

// StartTrial runs a full shadow trial: snapshot, apply, stabilize,
// sample, revert, compute delta. It blocks until the trial finishes,
// aborts, or ctx is cancelled.
func StartTrial(ctx context.Context, applier Applier, sampleFn SampleFunc, p Proposal, opts Options) (Result, error) {
	if !p.ChangeType.ShadowTestable() {
		return Result{}, ErrNotShadowTestable
	}
	opts = opts.withDefaults()

	before, alive := sampleFn()
	if !alive {
		return Result{Proposal: p, Aborted: true, AbortReason: "Target emulator exited"}, nil
	}

	if err := applier.Apply(p); err != nil {
		return Result{}, err
	}

	deadline := time.Now().Add(opts.Stabilization + opts.Duration)
	stabilizedAt := time.Now().Add(opts.Stabilization)

	var trialSamples []Metrics
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			_ = applier.Revert(p)
			return Result{}, ctx.Err()
		case <-ticker.C:
			m, alive := sampleFn()
			if !alive {
				_ = applier.Revert(p)
				return Result{Proposal: p, Before: before, Aborted: true, AbortReason: "Target emulator exited"}, nil
			}
			if time.Now().After(stabilizedAt) {
				trialSamples = append(trialSamples, m)
			}
		}
	}

	if err := applier.Revert(p); err != nil {
		return Result{}, err
	}

	after := meanMetrics(trialSamples)
	delta := 0.0
	if before.FPS != 0 {
		delta = (after.FPS - before.FPS) / before.FPS
	}

	return Result{
		Proposal:         p,
		Before:           before,
		After:            after,
		PerformanceDelta: delta,
	}, nil
}

func meanMetrics(samples []Metrics) Metrics {
	if len(samples) == 0 {
		return Metrics{}
	}
	var sum float64
	for _, s := range samples {
		sum += s.FPS
	}
	return Metrics{FPS: sum / float64(len(samples))}
}
