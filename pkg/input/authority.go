// Package input implements the Input Authority layer: the low-level
// mouse capture mechanism that intercepts physical deltas, drives the
// Sensitivity Pipeline, and injects the residual delta back into the
// OS input stream. Per the design notes this is modeled as an
// explicitly-owned value, not a process-wide singleton: callers
// construct one Authority and hand the platform hook installer a
// reference to it.
package input

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/neo-z/zereca/pkg/platform"
	"github.com/neo-z/zereca/pkg/sensitivity"
	"github.com/neo-z/zereca/pkg/sysutil"
)

// Telemetry is the subset of Authority state the control plane's
// property bridge reads: mouse velocity, motion angle, rolling
// latency (spec §4.2 "Telemetry emitted").
type Telemetry struct {
	VelocityMagnitude float64
	AngleDegrees      float64
	LatencyMs         float64
}

// Authority drives the Pipeline from a platform mouse hook. The zero
// value is not ready to use; construct with New.
type Authority struct {
	plat     platform.Platform
	pipeline *sensitivity.Pipeline
	logger   *slog.Logger

	mu        sync.Mutex
	hook      platform.Hook
	active    bool
	firstMove bool

	telemetry atomic.Pointer[Telemetry]
	latency   sysutil.EMA
}

// New constructs an Authority bound to plat and pipeline. It starts
// inactive (safe mode): no hook is installed until StartHook is
// called.
func New(plat platform.Platform, pipeline *sensitivity.Pipeline, logger *slog.Logger) *Authority {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authority{
		plat:     plat,
		pipeline: pipeline,
		logger:   logger.With("component", "input_authority"),
		latency:  *sysutil.NewEMA(0.2),
	}
	a.telemetry.Store(&Telemetry{})
	return a
}

// StartHook installs the platform hook, resets the first-move flag,
// and marks the authority active. Idempotent: calling it while
// already active is a no-op.
func (a *Authority) StartHook() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return nil
	}

	hook, err := a.plat.InstallMouseHook(a.onEvent)
	if err != nil {
		a.logger.Error("failed to install mouse hook", "error", err)
		return fmt.Errorf("input authority: start hook: %w", err)
	}
	a.hook = hook
	a.firstMove = true
	a.active = true
	return nil
}

// StopHook removes the platform hook and marks the authority inactive.
// Idempotent.
func (a *Authority) StopHook() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return nil
	}
	a.active = false
	hook := a.hook
	a.hook = nil
	if hook == nil {
		return nil
	}
	if err := hook.Close(); err != nil {
		return fmt.Errorf("input authority: stop hook: %w", err)
	}
	return nil
}

// Active reports whether the hook is currently installed.
func (a *Authority) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Telemetry returns a copy of the most recently published telemetry.
func (a *Authority) Telemetry() Telemetry {
	return *a.telemetry.Load()
}

// onEvent is the platform hook callback, running on the platform's
// hook-dispatch thread. It must never block.
func (a *Authority) onEvent(ev platform.MouseEvent) {
	if ev.Injected {
		// Our own synthetic event looping back through the hook chain;
		// pass through untouched (re-entry protection).
		return
	}

	a.mu.Lock()
	first := a.firstMove
	a.firstMove = false
	a.mu.Unlock()

	if first {
		// First post-start event only records position; no injection.
		return
	}

	if ev.DeltaX == 0 && ev.DeltaY == 0 {
		return
	}

	start := a.plat.MonotonicMs()
	raw := sensitivity.NewInputState(ev.DeltaX, ev.DeltaY, ev.TimestampMs)
	processed := a.pipeline.Process(raw, ev.TimestampMs)
	elapsedMs := a.plat.MonotonicMs() - start

	residualX := math.Round(processed.DeltaX) - ev.DeltaX
	residualY := math.Round(processed.DeltaY) - ev.DeltaY
	if residualX != 0 || residualY != 0 {
		if err := a.plat.InjectInput(int(residualX), int(residualY)); err != nil {
			a.logger.Warn("residual injection failed", "error", err)
		}
	}

	angle := math.Atan2(processed.DeltaY, processed.DeltaX) * 180 / math.Pi
	a.mu.Lock()
	lat := a.latency.Next(elapsedMs)
	a.mu.Unlock()

	a.telemetry.Store(&Telemetry{
		VelocityMagnitude: processed.Velocity,
		AngleDegrees:      angle,
		LatencyMs:         lat,
	})
}
