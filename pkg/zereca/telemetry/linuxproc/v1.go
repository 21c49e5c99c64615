//go:build linux

package linuxproc

import (
	"runtime"
)

// v1Collector samples the tracked process group's CPU utilization and
// a memory-pressure proxy using only /proc, for hosts with no cgroup
// v2 accounting files to read from.
type v1Collector struct {
	clkTck   int
	pageSize int
	nproc    int

	// EMA smoothing for the reported CPU utilization, alpha=0 disables.
	alpha      float64
	emaOK      bool
	emaPrevCPU float64

	cpuPrev    map[int]uint64 // utime+stime jiffies
	rssPrev    map[int]uint64
	minfltPrev map[int]uint64
}

func newV1(alpha float64) (Collector, error) {
	return &v1Collector{
		clkTck:     ClockTicks(),
		pageSize:   PageSize(),
		nproc:      runtime.NumCPU(),
		alpha:      clamp01(alpha),
		cpuPrev:    make(map[int]uint64),
		rssPrev:    make(map[int]uint64),
		minfltPrev: make(map[int]uint64),
	}, nil
}

func (c *v1Collector) Close() error { return nil }

func (c *v1Collector) Sample(pids []int, dtSec float64) (float64, float64, error) {
	if len(pids) == 0 {
		return 0, 0, ErrNoPIDs
	}
	if !(dtSec > 0) {
		return 0, 0, ErrBadDt
	}

	var (
		cpuJiffiesDelta uint64
		refaultBytes    uint64 // minor-fault proxy, v1 has no true refault counter
		rssChurnBytes   uint64
		alive           int
	)
	for _, pid := range pids {
		if !Exists(pid) {
			continue
		}
		alive++

		if ut, st, mn, _, err := ReadProcStat(pid); err == nil {
			j := ut + st
			cpuJiffiesDelta += deltaU64(j, c.cpuPrev[pid])
			c.cpuPrev[pid] = j

			dMn := deltaU64(mn, c.minfltPrev[pid])
			c.minfltPrev[pid] = mn
			refaultBytes += dMn * uint64(c.pageSize)
		}

		if rssNow, err := ReadProcRSS(pid); err == nil {
			prev := c.rssPrev[pid]
			if rssNow >= prev {
				rssChurnBytes += rssNow - prev
			} else {
				rssChurnBytes += prev - rssNow
			}
			c.rssPrev[pid] = rssNow
		}
	}
	if alive == 0 {
		return 0, 0, ErrAllExited
	}

	cpuSec := float64(cpuJiffiesDelta) / float64(c.clkTck)
	cpuUtilization := safeDiv(cpuSec, float64(c.nproc)*dtSec)
	if c.alpha > 0 {
		if !c.emaOK {
			c.emaPrevCPU = cpuUtilization
			c.emaOK = true
		} else {
			c.emaPrevCPU = c.alpha*cpuUtilization + (1-c.alpha)*c.emaPrevCPU
		}
		cpuUtilization = c.emaPrevCPU
	}
	cpuUtilization = clamp01(cpuUtilization)

	memPressure := 0.0
	if rssChurnBytes > 0 {
		memPressure = clamp01(float64(refaultBytes) / float64(rssChurnBytes))
	}
	return cpuUtilization, memPressure, nil
}
