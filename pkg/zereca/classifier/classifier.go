// Package classifier implements the Outcome Classifier: labels a
// completed trial against its baseline into one of four outcomes
// (spec §4.9).
package classifier

import (
	"time"

	"github.com/neo-z/zereca/pkg/types"
)

// Metrics is the subset of Baseline/Aggregated Telemetry the
// classifier compares: fps, avg frame time, and fps variance.
type Metrics struct {
	FPS         float64
	FrameTimeMs float64
	FPSVariance float64
}

// Result is the classifier's verdict.
type Result struct {
	Outcome         types.Outcome
	Delta           float64
	Confidence      float64
	ShouldCommit    bool
	ShouldRevert    bool
	ShouldRollback  bool
	ProbationSeverity types.Severity // zero value means "no probation entry"
}

const (
	deltaPositiveThreshold = 0.05
	deltaNegativeThreshold = -0.10
	confidenceThreshold    = 0.7
	confidenceDivisorMs    = 10000.0
	confidenceScale        = 0.9

	weightFPS       = 0.5
	weightFrameTime = 0.3
	weightVariance  = 0.2
)

// Classify compares current against baseline over a trial that ran
// for duration, applying the ordered rules from spec §4.9.
func Classify(baseline, current Metrics, durationMs float64, hadCrash, hadThermalEvent bool) Result {
	if hadThermalEvent {
		return Result{
			Outcome:           types.OutcomeNegativeSafety,
			ShouldRollback:    true,
			ProbationSeverity: types.SeverityCritical,
		}
	}
	if hadCrash {
		return Result{
			Outcome:           types.OutcomeNegativeStability,
			ShouldRollback:    true,
			ProbationSeverity: types.SeverityMedium,
		}
	}

	deltaFPS := relativeChange(baseline.FPS, current.FPS)
	deltaFrameTime := -relativeChange(baseline.FrameTimeMs, current.FrameTimeMs)
	deltaVariance := -relativeChange(baseline.FPSVariance, current.FPSVariance)

	delta := weightFPS*deltaFPS + weightFrameTime*deltaFrameTime + weightVariance*deltaVariance
	confidence := min(1.0, durationMs/confidenceDivisorMs) * confidenceScale

	switch {
	case delta >= deltaPositiveThreshold && confidence >= confidenceThreshold:
		return Result{Outcome: types.OutcomePositive, Delta: delta, Confidence: confidence, ShouldCommit: true}
	case delta <= deltaNegativeThreshold:
		return Result{
			Outcome:           types.OutcomeNegativeStability,
			Delta:             delta,
			Confidence:        confidence,
			ShouldRollback:    true,
			ProbationSeverity: types.SeverityLow,
		}
	default:
		return Result{Outcome: types.OutcomeNeutral, Delta: delta, Confidence: confidence, ShouldRevert: true}
	}
}

// relativeChange returns (current-baseline)/baseline, treating a zero
// baseline as a no-op (0 delta) rather than dividing by zero.
func relativeChange(baseline, current float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (current - baseline) / baseline
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Duration is a convenience helper for callers holding a time.Duration
// instead of a raw millisecond count.
func Duration(d time.Duration) float64 { return float64(d.Milliseconds()) }
