// Package telemetry implements the Telemetry Reader: periodic
// aggregation of OS counters into the one shape the Learning
// subsystem may ever consume, across the Standard and Operator
// privilege tiers (spec §4.6).
package telemetry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/neo-z/zereca/pkg/platform"
)

// Aggregated is the only shape the Learning subsystem may consume
// (spec §3's "Aggregated Telemetry"). Raw kernel tracing events are
// never exposed to callers.
type Aggregated struct {
	CPUResidency      float64
	ContextSwitchRate float64
	CoreUtilization   float64
	GPUQueueDepth     float64
	GPUUtilization    float64
	MemoryPressure    float64
	StandbySize       float64
	ThermalHeadroom   float64
	AvgFrameTimeMs    float64
	FPSVariance       float64
	FPS               float64
	Timestamp         time.Time
}

// ExternalHooks supplies the metrics no OS counter can produce: a
// target process's own FPS and frame time, reported by an in-game
// overlay or the device shell.
type ExternalHooks interface {
	// Sample returns per-process FPS and frame time, and false if no
	// reading is currently available (e.g. the hook has not attached
	// to a target yet).
	Sample() (fps, frameTimeMs float64, ok bool)
}

// ResourceSampler supplies the Standard-tier CPU/memory proxies that
// substitute for kernel tracing when the process does not hold
// Operator privileges. LinuxResourceSampler (Linux builds only) is
// backed by linuxproc's cgroup collector; there is no implementation
// for other platforms. New substitutes a stub that always reports
// unavailable whenever it is given a nil ResourceSampler.
type ResourceSampler interface {
	// Sample returns CPU utilization and memory pressure in [0,1], and
	// false if no target process is currently tracked.
	Sample() (cpuUtilization, memPressure float64, ok bool)
}

// collectionInterval is a var, not a const, so tests can shrink the
// 2 Hz cadence without waiting on real wall-clock time.
var collectionInterval = 500 * time.Millisecond

// setCollectionIntervalForTest overrides the collection cadence; test
// helper only, never called from production code paths.
func setCollectionIntervalForTest(d time.Duration) { collectionInterval = d }

// Reader periodically collects AggregatedTelemetry under a lock,
// downgrading from Operator to Standard tier if kernel tracing access
// is lost at runtime.
type Reader struct {
	plat      platform.Platform
	hooks     ExternalHooks
	resources ResourceSampler
	logger    *slog.Logger

	mu         sync.RWMutex
	latest     Aggregated
	operator   bool
	fpsHistory []float64

	onPrivilegesLost func()

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Reader bound to a Platform, its external FPS/
// frame-time hook source, and a Standard-tier resource sampler.
func New(plat platform.Platform, hooks ExternalHooks, resources ResourceSampler, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if resources == nil {
		resources = noopResourceSampler{}
	}
	return &Reader{plat: plat, hooks: hooks, resources: resources, logger: logger.With("component", "telemetry"), stop: make(chan struct{})}
}

// noopResourceSampler is the fallback ResourceSampler for platforms
// with no wired Standard-tier accounting path.
type noopResourceSampler struct{}

func (noopResourceSampler) Sample() (float64, float64, bool) { return 0, 0, false }

// OnPrivilegesLost registers the privilegesLost callback, fired the
// first time a collection tick finds Operator tracing no longer
// available.
func (r *Reader) OnPrivilegesLost(fn func()) { r.onPrivilegesLost = fn }

// Start launches the 2 Hz collection loop in a background goroutine.
func (r *Reader) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(collectionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.collect()
			}
		}
	}()
}

// Stop ends the collection loop and waits for it to exit.
func (r *Reader) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// LatestMetrics returns a copy of the most recently collected
// Aggregated telemetry.
func (r *Reader) LatestMetrics() Aggregated {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// collect runs a single 2 Hz sampling tick.
func (r *Reader) collect() {
	var agg Aggregated
	agg.Timestamp = platform.Now()

	if fps, frameTime, ok := r.hooks.Sample(); ok {
		agg.FPS = fps
		agg.AvgFrameTimeMs = frameTime
		agg.FPSVariance = r.pushFPSSample(fps)
	}
	if cpu, mem, ok := r.resources.Sample(); ok {
		agg.CoreUtilization = cpu
		agg.MemoryPressure = mem
	}

	wasOperator := r.isOperator()
	cpuResidency, ctxSwitch, gpuQueue, err := r.plat.KernelTelemetry()
	if err != nil {
		if wasOperator {
			r.setOperator(false)
			r.logger.Warn("kernel telemetry unavailable, downgrading to Standard tier", "error", err)
			if r.onPrivilegesLost != nil {
				r.onPrivilegesLost()
			}
		}
	} else {
		r.setOperator(true)
		agg.CPUResidency = cpuResidency
		agg.ContextSwitchRate = ctxSwitch
		agg.GPUQueueDepth = gpuQueue
	}

	r.mu.Lock()
	r.latest = agg
	r.mu.Unlock()
}

// fpsHistoryLen matches the Observation Phase's 30-sample stability
// window, so FPSVariance here spans the same number of samples.
const fpsHistoryLen = 30

// pushFPSSample appends fps to the rolling window and returns the
// sample variance of the window under the Reader's own lock.
func (r *Reader) pushFPSSample(fps float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fpsHistory = append(r.fpsHistory, fps)
	if len(r.fpsHistory) > fpsHistoryLen {
		r.fpsHistory = r.fpsHistory[len(r.fpsHistory)-fpsHistoryLen:]
	}
	if len(r.fpsHistory) < 2 {
		return 0
	}
	var sum float64
	for _, v := range r.fpsHistory {
		sum += v
	}
	mean := sum / float64(len(r.fpsHistory))
	var sq float64
	for _, v := range r.fpsHistory {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(r.fpsHistory))
}

func (r *Reader) isOperator() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operator
}

func (r *Reader) setOperator(v bool) {
	r.mu.Lock()
	r.operator = v
	r.mu.Unlock()
}

// Tier reports the privilege tier the most recent collection tick
// observed.
func (r *Reader) Tier() string {
	if r.isOperator() {
		return "Operator"
	}
	return "Standard"
}
