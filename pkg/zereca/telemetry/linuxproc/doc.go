// Package linuxproc samples two Standard-tier resource proxies on
// Linux for a tracked set of PIDs: CPU utilization and a
// memory-pressure ratio. It backs telemetry.LinuxResourceSampler
// (see pkg/zereca/telemetry/resource_linux.go, Linux builds only),
// which feeds the Telemetry Reader's Aggregated.CoreUtilization and
// Aggregated.MemoryPressure fields when passed to telemetry.New.
// cmd/zereca passes no sampler, and the Reader's tests use fakes,
// so neither reaches this package. The Operator tier's kernel-scheduler counters come from
// platform.Platform.KernelTelemetry instead (pkg/platform), which on
// Windows backs onto an ETW tracing session.
//
// # Overview
//
//   - Collector interface:
//     Sample(pids []int, dtSec float64) (cpuUtilization, memPressure float64, err error)
//     Close() error
//
//     Sample reports both proxies in [0,1] over the dtSec window
//     ending now. Callers typically call Sample in a loop driven by a
//     ticker (dt ≈ the Reader's collection interval). Close performs
//     backend cleanup (e.g. removes a temporary cgroup v2 leaf),
//     best-effort.
//
//   - Backends:
//
//   - cgroup v2 (preferred): reads the temp cgroup's cpu.stat
//     (usage_usec) for CPU, and memory.stat (workingset_refault) for
//     the refault side of the memory-pressure ratio.
//
//   - cgroup v1 (fallback): sums per-PID utime+stime from /proc for
//     CPU, and approximates refault activity from minor faults ×
//     page size (no true refault counter exists under v1).
//
//   - Memory pressure: both backends divide refault bytes by summed
//     |ΔRSS| across the tracked PIDs (RSS from smaps_rollup, falling
//     back to statm), clamped to [0,1]. Sustained refaults relative
//     to RSS churn indicate the working set is being evicted and
//     reloaded.
//
//   - Errors (errs.go):
//     ErrNoPIDs    : Sample called with empty pid slice
//     ErrBadDt     : dtSec <= 0
//     ErrAllExited : none of the provided pids are alive at sampling time
//
//   - Smoothing (EMA): both collectors accept alpha ∈ [0,1] to apply
//     an exponential moving average to the reported CPU utilization.
//     alpha=0 disables smoothing.
//
// # Factory & version selection
//
//	NewCollector(alpha float64) (Collector, error) chooses the backend
//	by the cgroup version Detect() reports: v2 or hybrid prefers v2,
//	v1 uses the /proc-only collector. Callers don't need to check the
//	cgroup version explicitly.
//
// # Testing guidance
//
//   - v1 tests are hermetic (read from /proc only) and require no
//     privileges.
//   - v2 tests should SKIP if /sys/fs/cgroup is not a cgroup2 mount.
//   - Some kernels may omit memory.stat:workingset_refault; treat a
//     missing counter as unchanged, not as an error.
//   - Avoid asserting specific non-zero values on idle runners; induce
//     a small workload (touch memory, burn a bit of CPU) to get signal.
package linuxproc
