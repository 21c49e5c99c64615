// Package platform hides every OS-specific primitive the control
// plane and input authority need behind one interface: low-level
// mouse hooking, injection, process priority/affinity, power schemes,
// timer resolution, and (on Windows) an ETW-adjacent tracing session.
// pkg/sensitivity and the zereca control-plane packages stay
// platform-agnostic and only ever talk to this interface.
package platform

import "time"

// MouseEvent is a single hardware mouse-movement sample delivered by
// the low-level hook, before any pipeline processing.
type MouseEvent struct {
	DeltaX, DeltaY float64
	TimestampMs    float64
	Injected       bool // true if this event originated from our own SendInput call
}

// PowerMode mirrors the Target State Document's power_mode values.
type PowerMode string

const (
	PowerPerformance PowerMode = "performance"
	PowerBalanced    PowerMode = "balanced"
	PowerSaver       PowerMode = "power_saver"
	PowerCustom      PowerMode = "custom"
	PowerUnknown     PowerMode = "unknown"
)

// TimerResolution mirrors the Target State Document's
// timer_resolution values.
type TimerResolution string

const (
	TimerDefault TimerResolution = "default"
	Timer1ms     TimerResolution = "1ms"
	Timer0_5ms   TimerResolution = "0.5ms"
	TimerUnknown TimerResolution = "unknown"
)

// PriorityClass enumerates the OS process priority classes the
// Arbiter's Priority change type cycles through.
type PriorityClass int

const (
	PriorityIdle PriorityClass = iota
	PriorityBelowNormal
	PriorityNormal
	PriorityAboveNormal
	PriorityHigh
)

// IOPriority enumerates the 3 discrete I/O priority values named in
// spec §4.12's default Hypothesis Engine dimensions.
type IOPriority int

const (
	IOPriorityLow IOPriority = iota
	IOPriorityNormal
	IOPriorityHigh
)

// Hook is the handle returned by InstallMouseHook; releasing it
// removes the low-level hook.
type Hook interface {
	Close() error
}

// Platform is the single seam between the domain logic (Sensitivity
// Pipeline, Input Authority, Arbiter, Reconciler, Telemetry Reader)
// and the operating system. Every method must be safe to call from
// the goroutine appropriate to its concurrency tier, documented per
// method; none may be called from the Pipeline's hot path except
// InjectInput and MonotonicMs.
type Platform interface {
	// InstallMouseHook registers onEvent to be called for every
	// low-level mouse-movement event and returns a handle to release
	// it. onEvent runs on the platform's hook-dispatch thread and
	// must not block.
	InstallMouseHook(onEvent func(MouseEvent)) (Hook, error)

	// InjectInput re-injects a synthetic mouse delta, setting the
	// platform's injected-event flag so the hook can recognize and
	// ignore it. Safe to call from the hot path; must not block.
	InjectInput(deltaX, deltaY int) error

	// MonotonicMs returns a monotonic timestamp in milliseconds.
	MonotonicMs() float64

	// ActivePowerMode reads the OS's current power scheme. Returns
	// PowerUnknown if it cannot be determined.
	ActivePowerMode() (PowerMode, error)
	// SetPowerMode requests a change of active power scheme.
	SetPowerMode(PowerMode) error

	// ActiveTimerResolution reads the current system timer
	// resolution. Returns TimerUnknown if it cannot be determined.
	ActiveTimerResolution() (TimerResolution, error)
	// SetTimerResolution requests a system timer-resolution change.
	SetTimerResolution(TimerResolution) error

	// CPUParkingEnabled reads the power scheme's processor-core-
	// parking attribute.
	CPUParkingEnabled() (bool, error)
	// SetCPUParking toggles processor core parking.
	SetCPUParking(enabled bool) error

	// ProcessAffinity reads the affinity mask of the named process as
	// a core-group descriptor ("all", "gold_cores", or a hex mask).
	ProcessAffinity(processName string) (string, error)
	// SetProcessAffinity opens the named process and applies the
	// parsed core-group descriptor.
	SetProcessAffinity(processName, coreGroup string) error

	// SetProcessPriority sets a process's scheduling priority class.
	SetProcessPriority(processName string, class PriorityClass) error
	// SetProcessIOPriority sets a process's I/O priority band.
	SetProcessIOPriority(processName string, prio IOPriority) error

	// PrivilegeTier reports whether the process currently holds
	// elevated (Operator) privileges.
	PrivilegeTier() (operator bool, err error)

	// KernelTelemetry returns the Operator-tier-only counters (CPU
	// residency, context-switch rate, GPU queue depth) sourced from a
	// kernel-scheduler tracing session. Returns an error when the
	// process does not currently hold Operator privileges.
	KernelTelemetry() (cpuResidency, contextSwitchRate, gpuQueueDepth float64, err error)

	// AppDataDir returns the directory target-state, probation, and
	// flight-recorder files are persisted under.
	AppDataDir() (string, error)
}

// Now is the platform-independent wall clock used only for log
// display and disk filenames, per the design notes' clock rule.
func Now() time.Time { return time.Now() }
