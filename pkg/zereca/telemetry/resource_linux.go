//go:build linux

package telemetry

import (
	"sync"
	"time"

	"github.com/neo-z/zereca/pkg/zereca/telemetry/linuxproc"
)

// LinuxResourceSampler proxies Standard-tier CPU/memory pressure from
// linuxproc's cgroup collector, for dev and CI environments that run
// the control plane without Windows's kernel-scheduler tracing
// session.
type LinuxResourceSampler struct {
	collector linuxproc.Collector
	pids      func() []int

	mu       sync.Mutex
	lastTime time.Time
}

// NewLinuxResourceSampler constructs a sampler backed by
// linuxproc.NewCollector, tracking the PIDs pidsFn returns on each
// tick. An empty PID list reports unavailable rather than erroring,
// since no target has attached yet.
func NewLinuxResourceSampler(alpha float64, pidsFn func() []int) (*LinuxResourceSampler, error) {
	c, err := linuxproc.NewCollector(alpha)
	if err != nil {
		return nil, err
	}
	return &LinuxResourceSampler{collector: c, pids: pidsFn, lastTime: time.Now()}, nil
}

func (s *LinuxResourceSampler) Sample() (float64, float64, bool) {
	pids := s.pids()
	if len(pids) == 0 {
		return 0, 0, false
	}

	s.mu.Lock()
	dt := time.Since(s.lastTime).Seconds()
	s.lastTime = time.Now()
	s.mu.Unlock()
	if dt <= 0 {
		return 0, 0, false
	}

	cpuUtilization, memPressure, err := s.collector.Sample(pids, dt)
	if err != nil {
		return 0, 0, false
	}
	return cpuUtilization, memPressure, true
}

// Close releases the underlying cgroup collector.
func (s *LinuxResourceSampler) Close() error { return s.collector.Close() }
