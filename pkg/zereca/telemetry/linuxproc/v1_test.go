//go:build linux

package linuxproc

import (
	"errors"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepSec sleeps and returns the precise elapsed duration in seconds.
func sleepSec(d time.Duration) float64 {
	start := time.Now()
	time.Sleep(d)
	return time.Since(start).Seconds()
}

func TestV1_NewAndClose(t *testing.T) {
	c, err := newV1(0.5) // EMA enabled
	require.NoError(t, err)
	require.NotNil(t, c)
	require.NoError(t, c.Close())
}

func TestV1_Sample_Errors(t *testing.T) {
	c, err := newV1(0.0)
	require.NoError(t, err)

	// empty pid slice
	_, _, err = c.Sample(nil, 1.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPIDs))

	// dtSec <= 0
	_, _, err = c.Sample([]int{os.Getpid()}, 0.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadDt))

	// all pids exited (use a very large PID)
	_, _, err = c.Sample([]int{99999999}, 1.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllExited))
}

func TestV1_Sample_SelfSingleTick(t *testing.T) {
	c, err := newV1(0.0) // no EMA, keep raw behavior
	require.NoError(t, err)
	defer c.Close()

	pids := []int{os.Getpid()}

	// Let some CPU jiffies elapse from construction.
	dt := sleepSec(100 * time.Millisecond)

	cpuUtilization, memPressure, err := c.Sample(pids, dt)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, cpuUtilization, 0.0)
	assert.LessOrEqual(t, cpuUtilization, 1.0)
	assert.GreaterOrEqual(t, memPressure, 0.0)
	assert.LessOrEqual(t, memPressure, 1.0)
}

func TestV1_Sample_TwoTicksAndUtilRanges(t *testing.T) {
	// Enable EMA to exercise the smoothing path too.
	c, err := newV1(0.5)
	require.NoError(t, err)
	defer c.Close()

	pids := []int{os.Getpid()}

	// Kick off workload overlapping both samples (~300ms).
	go doWork(t, 300*time.Millisecond)

	dt1 := sleepSec(150 * time.Millisecond)
	cpu1, mem1, err := c.Sample(pids, dt1)
	require.NoError(t, err)

	dt2 := sleepSec(150 * time.Millisecond)
	cpu2, mem2, err := c.Sample(pids, dt2)
	require.NoError(t, err)

	for _, v := range []float64{cpu1, mem1, cpu2, mem2} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}

	// With the induced workload we should see some CPU signal.
	assert.True(t, cpu1 > 0 || cpu2 > 0, "expected some CPU activity with induced workload")
}

func TestV1_Sample_HandlesPIDExitBetweenTicks(t *testing.T) {
	c, err := newV1(0.0)
	require.NoError(t, err)
	defer c.Close()

	// Spawn a short-lived child process: /bin/sleep 0.1
	p, err := os.StartProcess("/bin/sleep", []string{"sleep", "0.1"}, &os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	})
	if err != nil {
		t.Skipf("skip: cannot start /bin/sleep: %v", err)
		return
	}
	pid := p.Pid

	dt1 := sleepSec(50 * time.Millisecond)
	_, _, err = c.Sample([]int{pid}, dt1)
	// It's possible the process has already exited (fast), so allow either outcome.
	if err != nil {
		assert.True(t, errors.Is(err, ErrAllExited))
	}

	_, err = p.Wait()
	require.NoError(t, err)

	dt2 := sleepSec(50 * time.Millisecond)
	_, _, err = c.Sample([]int{pid}, dt2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllExited))
}

func doWork(t *testing.T, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		// allocate ~4MB and touch it in a loop
		buf := make([]byte, 4<<20)
		start := time.Now()
		for time.Since(start) < d {
			for i := 0; i < len(buf); i += 4096 {
				buf[i]++
			}
			x := 1.0
			for i := 0; i < 10000; i++ {
				x = x*1.000001 + 0.000001
			}
			_ = x
			runtime.Gosched()
		}
		close(done)
	}()
	<-done
}
