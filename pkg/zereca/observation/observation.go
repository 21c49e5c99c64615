// Package observation implements the Observation Phase: baseline
// metric collection with stability-based early exit (spec §4.11).
package observation

import (
	"context"
	"errors"
	"math"
	"time"
)

// Sample is one 2 Hz telemetry sample.
type Sample struct {
	Timestamp   time.Time
	FPS         float64
	FrameTimeMs float64
	CPU         float64
	GPU         float64
	MemPressure float64
}

// Baseline is the statistical summary produced on success.
type Baseline struct {
	MeanFPS         float64
	MeanFrameTimeMs float64
	FPSVariance     float64
	MeanCPU         float64
	MeanGPU         float64
	MeanMemPressure float64
	ElapsedMs       float64
}

// sampleInterval is a var rather than a const so tests can shrink the
// 2 Hz cadence without waiting out real minutes.
var sampleInterval = 500 * time.Millisecond

const (
	defaultMinDuration = 2 * time.Minute
	defaultMaxDuration = 5 * time.Minute
	stabilityWindowLen = 30
	defaultStabilityCV = 0.05
)

// ErrTargetLost is returned when the sampled PID disappeared before
// the observation could complete.
var ErrTargetLost = errors.New("observation: target process exited")

// Options configures an observation run; zero values take the
// documented defaults.
type Options struct {
	MinDuration  time.Duration
	MaxDuration  time.Duration
	StabilityCV  float64
}

func (o Options) withDefaults() Options {
	if o.MinDuration <= 0 {
		o.MinDuration = defaultMinDuration
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = defaultMaxDuration
	}
	if o.StabilityCV <= 0 {
		o.StabilityCV = defaultStabilityCV
	}
	return o
}

// SampleFunc returns the current telemetry sample for the target
// process, and false if the process is no longer alive.
type SampleFunc func() (Sample, bool)

// Run samples at 2 Hz via sampleFn until early-exit stability,
// max-duration cap, or target loss. onComplete/onFailed are invoked
// exactly once before Run returns.
func Run(ctx context.Context, sampleFn SampleFunc, opts Options, onComplete func(Baseline), onFailed func(error)) error {
	opts = opts.withDefaults()
	start := time.Now()

	var samples []Sample
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if onFailed != nil {
				onFailed(ctx.Err())
			}
			return ctx.Err()
		case <-ticker.C:
			s, alive := sampleFn()
			if !alive {
				if onFailed != nil {
					onFailed(ErrTargetLost)
				}
				return ErrTargetLost
			}
			s.Timestamp = time.Now()
			samples = append(samples, s)

			elapsed := time.Since(start)
			if elapsed >= opts.MaxDuration {
				onComplete(computeBaseline(samples, elapsed))
				return nil
			}
			if elapsed >= opts.MinDuration && isStable(samples, opts.StabilityCV) {
				onComplete(computeBaseline(samples, elapsed))
				return nil
			}
		}
	}
}

func isStable(samples []Sample, cvThreshold float64) bool {
	if len(samples) < stabilityWindowLen {
		return false
	}
	window := samples[len(samples)-stabilityWindowLen:]
	fps := make([]float64, len(window))
	for i, s := range window {
		fps[i] = s.FPS
	}
	return coefficientOfVariation(fps) < cvThreshold
}

func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanOf(values)
	if mean == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	variance := sumSq / float64(len(values))
	return math.Sqrt(variance) / mean
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func computeBaseline(samples []Sample, elapsed time.Duration) Baseline {
	n := len(samples)
	if n == 0 {
		return Baseline{ElapsedMs: float64(elapsed.Milliseconds())}
	}

	var fps, frameTime, cpu, gpu, mem []float64
	for _, s := range samples {
		fps = append(fps, s.FPS)
		frameTime = append(frameTime, s.FrameTimeMs)
		cpu = append(cpu, s.CPU)
		gpu = append(gpu, s.GPU)
		mem = append(mem, s.MemPressure)
	}

	meanFPS := meanOf(fps)
	var sumSq float64
	for _, v := range fps {
		d := v - meanFPS
		sumSq += d * d
	}
	variance := sumSq / float64(n)

	return Baseline{
		MeanFPS:         meanFPS,
		MeanFrameTimeMs: meanOf(frameTime),
		FPSVariance:     variance,
		MeanCPU:         meanOf(cpu),
		MeanGPU:         meanOf(gpu),
		MeanMemPressure: meanOf(mem),
		ElapsedMs:       float64(elapsed.Milliseconds()),
	}
}
