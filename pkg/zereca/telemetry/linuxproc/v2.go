//go:build linux

package linuxproc

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// v2Collector uses the cgroup v2 unified hierarchy to attribute CPU
// directly to the tracked process group via cpu.stat (usage_usec),
// and memory.stat (workingset_refault) for a memory-pressure proxy.
// RSS churn (the pressure ratio's denominator) still comes from
// /proc, since cgroup v2 has no equivalent per-PID RSS delta.
type v2Collector struct {
	pageSize int
	nproc    int

	grpCG string // temporary leaf cgroup created for this Collector

	grpUsageUsecPrev uint64
	wsRefaultPrev    uint64

	// EMA smoothing for the reported CPU utilization, alpha=0 disables.
	alpha      float64
	emaOK      bool
	emaPrevCPU float64

	rssPrev map[int]uint64
}

// newV2 constructs the v2 collector and creates a temp cgroup under
// /sys/fs/cgroup to hold the tracked PIDs.
func newV2(alpha float64) (Collector, error) {
	root := "/sys/fs/cgroup"
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("cgroup v2 root not found: %w", err)
	}
	isV2, err := isCgroup2Mounted(root)
	if err != nil {
		return nil, err
	}
	if !isV2 {
		return nil, errors.New("cgroup v2 not mounted on /sys/fs/cgroup")
	}

	grp, err := createTempGroup(root)
	if err != nil {
		return nil, fmt.Errorf("create temp cgroup: %w", err)
	}

	return &v2Collector{
		pageSize: PageSize(),
		nproc:    runtime.NumCPU(),
		grpCG:    grp,
		alpha:    clamp01(alpha),
		rssPrev:  make(map[int]uint64),
	}, nil
}

func (c *v2Collector) Close() error {
	// Best effort: only succeeds if the group is empty.
	return os.Remove(c.grpCG)
}

func (c *v2Collector) Sample(pids []int, dtSec float64) (float64, float64, error) {
	if len(pids) == 0 {
		return 0, 0, ErrNoPIDs
	}
	if !(dtSec > 0) {
		return 0, 0, ErrBadDt
	}

	// Move PIDs into our group (idempotent; ignore EPERM/ENOENT per PID).
	alive := 0
	for _, pid := range pids {
		if !Exists(pid) {
			continue
		}
		_ = writePIDtoCgroup(c.grpCG, pid) // a PID that cannot be moved is missing from the group's cpu.stat
		alive++
	}
	if alive == 0 {
		return 0, 0, ErrAllExited
	}

	grpUseNow, err := readCPUUsageUsec(filepath.Join(c.grpCG, "cpu.stat"))
	if err != nil {
		return 0, 0, fmt.Errorf("read group cpu.stat: %w", err)
	}
	dGRPusec := deltaU64(grpUseNow, c.grpUsageUsecPrev)
	c.grpUsageUsecPrev = grpUseNow

	cpuUtilization := safeDiv(float64(dGRPusec)/1e6, float64(c.nproc)*dtSec)
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

	wsRefNow, err := readWorkingsetRefault(filepath.Join(c.grpCG, "memory.stat"))
	if err != nil {
		// Not all kernels expose it; treat a missing counter as unchanged.
		wsRefNow = c.wsRefaultPrev
	}
	dWsRef := deltaU64(wsRefNow, c.wsRefaultPrev)
	c.wsRefaultPrev = wsRefNow
	refaultBytes := dWsRef * uint64(c.pageSize)

	var rssChurn uint64
	aliveCount := 0
	for _, pid := range pids {
		if !Exists(pid) {
			continue
		}
		aliveCount++
		if rssNow, err := ReadProcRSS(pid); err == nil {
			prev := c.rssPrev[pid]
			if rssNow >= prev {
				rssChurn += rssNow - prev
			} else {
				rssChurn += prev - rssNow
			}
			c.rssPrev[pid] = rssNow
		}
	}
	if aliveCount == 0 {
		// Race: all died between move and read; treat as exited.
		return 0, 0, ErrAllExited
	}

	memPressure := 0.0
	if rssChurn > 0 {
		memPressure = clamp01(float64(refaultBytes) / float64(rssChurn))
	}
	return cpuUtilization, memPressure, nil
}

// ---- cgroup v2 helpers ----

// isCgroup2Mounted returns true if the given path is a cgroup2 mount.
func isCgroup2Mounted(path string) (bool, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return false, fmt.Errorf("open mountinfo: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		sep := " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		mountPoint := pre[4]
		tail := strings.Fields(line[i+len(sep):])
		if len(tail) < 1 {
			continue
		}
		fstype := tail[0]
		if mountPoint == path && fstype == "cgroup2" {
			return true, nil
		}
	}
	return false, sc.Err()
}

// createTempGroup makes a unique sub-cgroup under root (e.g.,
// /sys/fs/cgroup/zereca-telemetry.<pid>.<rand>).
func createTempGroup(root string) (string, error) {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	name := fmt.Sprintf("zereca-telemetry.%d.%s", os.Getpid(), hex.EncodeToString(suffix))
	dir := filepath.Join(root, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// writePIDtoCgroup moves a PID into the given cgroup by writing to
// <grp>/cgroup.procs.
func writePIDtoCgroup(grp string, pid int) error {
	f, err := os.OpenFile(filepath.Join(grp, "cgroup.procs"), os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(pid))
	if err == nil {
		_, err = f.WriteString("\n")
	}
	return err
}

// readCPUUsageUsec parses cpu.stat and returns usage_usec.
func readCPUUsageUsec(cpuStatPath string) (uint64, error) {
	f, err := os.Open(cpuStatPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "usage_usec ") {
			fs := strings.Fields(line)
			if len(fs) >= 2 {
				v, err := strconv.ParseUint(fs[1], 10, 64)
				if err != nil {
					return 0, err
				}
				return v, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("cpu.stat: usage_usec not found")
}

// readWorkingsetRefault parses memory.stat and returns
// workingset_refault (count of pages).
func readWorkingsetRefault(memStatPath string) (uint64, error) {
	f, err := os.Open(memStatPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "workingset_refault ") {
			fs := strings.Fields(line)
			if len(fs) >= 2 {
				v, err := strconv.ParseUint(fs[1], 10, 64)
				if err != nil {
					return 0, err
				}
				return v, nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("memory.stat: workingset_refault not found")
}
