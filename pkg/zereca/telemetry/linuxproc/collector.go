//go:build linux

package linuxproc

import (
	"fmt"
)

// Collector samples two Standard-tier telemetry proxies for a set of
// tracked PIDs over a sampling window: CPU utilization (feeds
// Aggregated.CoreUtilization) and a memory-pressure ratio (feeds
// Aggregated.MemoryPressure). Neither reading requires the Operator
// privilege tier's kernel tracing session.
type Collector interface {
	// Sample returns cpuUtilization and memPressure in [0,1] over the
	// dtSec window ending now.
	Sample(pids []int, dtSec float64) (cpuUtilization, memPressure float64, err error)
	Close() error
}

// NewCollector returns a Collector implementation chosen by the
// detected cgroup mode.
//   - V2 or Hybrid: prefer v2 (process-group CPU/memory accounting via
//     cgroup files, not per-PID /proc math).
//   - V1: fall back to a /proc-only collector.
func NewCollector(alpha float64) (Collector, error) {
	ver, _, err := Detect()
	if err != nil {
		return nil, fmt.Errorf("collector: detect cgroup: %w", err)
	}

	switch ver {
	case V2:
		return newV2(alpha)
	case Hybrid:
		return newV2(alpha)
	case V1:
		return newV1(alpha)
	default:
		return nil, ErrUnsupported
	}
}
