package state

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neo-z/zereca/pkg/platform"
)

// Current is the read-only snapshot of actual OS state for the same
// fields as Target; never persisted, recomputed every tick.
type Current struct {
	PowerMode       PowerMode
	TimerResolution TimerResolution
	CPUParking      bool
	ProcessAffinity map[string]string
}

const (
	minIntervalMs = 1000
	maxIntervalMs = 5000
)

// Reconciler periodically samples actual OS state and re-applies any
// drift against the Target State Manager. It runs on its own timer
// goroutine; Stop is safe to call more than once.
type Reconciler struct {
	manager *Manager
	plat    platform.Platform
	logger  *slog.Logger

	intervalMs int64 // atomic
	driftCount int64 // atomic

	onDrift      func(component, expected, actual string)
	onComplete   func(changesApplied int)

	immediate chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewReconciler constructs a Reconciler. intervalMs is clamped to
// [1000, 5000].
func NewReconciler(manager *Manager, plat platform.Platform, logger *slog.Logger, intervalMs int) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		manager:    manager,
		plat:       plat,
		logger:     logger.With("component", "reconciler"),
		intervalMs: int64(clampInterval(intervalMs)),
		immediate:  make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	manager.OnChanged(func(Target) { r.RequestImmediate() })
	return r
}

func clampInterval(ms int) int {
	if ms < minIntervalMs {
		return minIntervalMs
	}
	if ms > maxIntervalMs {
		return maxIntervalMs
	}
	return ms
}

// SetIntervalMs updates the tick interval, clamped to [1000, 5000].
func (r *Reconciler) SetIntervalMs(ms int) {
	atomic.StoreInt64(&r.intervalMs, int64(clampInterval(ms)))
}

// OnDrift registers the drift-detected callback.
func (r *Reconciler) OnDrift(fn func(component, expected, actual string)) { r.onDrift = fn }

// OnComplete registers the reconciliation-complete callback.
func (r *Reconciler) OnComplete(fn func(changesApplied int)) { r.onComplete = fn }

// DriftCount returns the monotonically non-decreasing drift counter.
func (r *Reconciler) DriftCount() int64 { return atomic.LoadInt64(&r.driftCount) }

// RequestImmediate schedules a reconciliation tick as soon as
// possible, without waiting for the timer.
func (r *Reconciler) RequestImmediate() {
	select {
	case r.immediate <- struct{}{}:
	default:
	}
}

// Run starts the reconciliation loop and blocks until ctx is
// cancelled or Stop is called.
func (r *Reconciler) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()

	for {
		interval := time.Duration(atomic.LoadInt64(&r.intervalMs)) * time.Millisecond
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.stop:
			timer.Stop()
			return
		case <-r.immediate:
			timer.Stop()
		case <-timer.C:
		}
		r.Tick()
	}
}

// Stop halts the reconciliation loop. Idempotent.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// Tick performs one reconciliation pass: read target, read current,
// apply drifted fields, emit callbacks.
func (r *Reconciler) Tick() {
	target := r.manager.Current()
	current := r.readCurrent(target)

	changes := 0
	if target.PowerMode != PowerUnknown && current.PowerMode != PowerUnknown && current.PowerMode != target.PowerMode {
		r.applyDrift("power_mode", string(target.PowerMode), string(current.PowerMode))
		if err := r.plat.SetPowerMode(platform.PowerMode(target.PowerMode)); err != nil {
			r.logger.Warn("failed to apply power mode", "error", err)
		} else {
			changes++
		}
	}
	if target.TimerResolution != TimerUnknown && current.TimerResolution != TimerUnknown && current.TimerResolution != target.TimerResolution {
		r.applyDrift("timer_resolution", string(target.TimerResolution), string(current.TimerResolution))
		if err := r.plat.SetTimerResolution(platform.TimerResolution(target.TimerResolution)); err != nil {
			r.logger.Warn("failed to apply timer resolution", "error", err)
		} else {
			changes++
		}
	}
	if current.CPUParking != target.CPUParking {
		r.applyDrift("cpu_parking", boolStr(target.CPUParking), boolStr(current.CPUParking))
		if err := r.plat.SetCPUParking(target.CPUParking); err != nil {
			r.logger.Warn("failed to apply cpu parking", "error", err)
		} else {
			changes++
		}
	}
	for proc, group := range target.ProcessAffinity {
		actual := current.ProcessAffinity[proc]
		if actual != "" && actual != "unknown" && actual != group {
			r.applyDrift("process_affinity:"+proc, group, actual)
			if err := r.plat.SetProcessAffinity(proc, group); err != nil {
				r.logger.Warn("failed to apply process affinity", "process", proc, "error", err)
			} else {
				changes++
			}
		}
	}

	if r.onComplete != nil {
		r.onComplete(changes)
	}
}

func (r *Reconciler) applyDrift(component, expected, actual string) {
	atomic.AddInt64(&r.driftCount, 1)
	if r.onDrift != nil {
		r.onDrift(component, expected, actual)
	}
}

// readCurrent reads actual OS state for the fields named in target.
func (r *Reconciler) readCurrent(target Target) Current {
	cur := Current{ProcessAffinity: map[string]string{}}

	if mode, err := r.plat.ActivePowerMode(); err == nil {
		cur.PowerMode = PowerMode(mode)
	} else {
		cur.PowerMode = PowerUnknown
	}
	if res, err := r.plat.ActiveTimerResolution(); err == nil {
		cur.TimerResolution = TimerResolution(res)
	} else {
		cur.TimerResolution = TimerUnknown
	}
	if parked, err := r.plat.CPUParkingEnabled(); err == nil {
		cur.CPUParking = parked
	}
	for proc := range target.ProcessAffinity {
		if aff, err := r.plat.ProcessAffinity(proc); err == nil {
			cur.ProcessAffinity[proc] = aff
		} else {
			cur.ProcessAffinity[proc] = "unknown"
		}
	}
	return cur
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
