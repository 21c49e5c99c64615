// Package hypothesis implements the Hypothesis Engine: a Bayesian-style
// parameter search over the optimization space, with fixed-rate random
// exploration and sorted hypothesis emission (spec §4.12).
package hypothesis

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/observation"
)

// Dimension is one tunable axis of the parameter space.
type Dimension struct {
	ChangeType     types.ChangeType
	TargetProcess  string
	DiscreteValues []string
	PriorGain      float64
	PriorConfidence float64

	// typeBias nudges priority ordering across dimensions of
	// otherwise-similar gain/confidence (spec §4.12 step 4).
	typeBias float64
}

// DefaultDimensions returns the five documented default dimensions
// (spec §4.12).
func DefaultDimensions(targetProcess string) []Dimension {
	return []Dimension{
		{ChangeType: types.ChangePriority, TargetProcess: targetProcess, DiscreteValues: []string{"IDLE", "BELOW_NORMAL", "NORMAL", "ABOVE_NORMAL", "HIGH"}, PriorGain: 0.05, PriorConfidence: 0.5, typeBias: 5},
		{ChangeType: types.ChangeIoPriority, TargetProcess: targetProcess, DiscreteValues: []string{"LOW", "NORMAL", "HIGH"}, PriorGain: 0.03, PriorConfidence: 0.5, typeBias: 3},
		{ChangeType: types.ChangeAffinity, TargetProcess: targetProcess, DiscreteValues: []string{"all_cores", "gold_cores"}, PriorGain: 0.04, PriorConfidence: 0.5, typeBias: 4},
		{ChangeType: types.ChangeTimer, TargetProcess: targetProcess, DiscreteValues: []string{"default", "1ms", "0.5ms"}, PriorGain: 0.02, PriorConfidence: 0.4, typeBias: 2},
		{ChangeType: types.ChangePowerPlan, TargetProcess: targetProcess, DiscreteValues: []string{"balanced", "high_performance", "ultimate"}, PriorGain: 0.03, PriorConfidence: 0.4, typeBias: 1},
	}
}

// Hypothesis is a generated, prioritized candidate proposal.
type Hypothesis struct {
	ChangeType    types.ChangeType
	TargetProcess string
	ProposedValue string
	ExpectedGain  float64
	Confidence    float64
	Priority      float64
}

const defaultExplorationRate = 0.2

type priorKey struct {
	change types.ChangeType
	value  string
}

// Engine generates hypotheses from a parameter space and updates
// per-(change_type, value) priors from observed outcomes.
type Engine struct {
	dimensions      []Dimension
	explorationRate float64
	rng             *rand.Rand

	mu         sync.Mutex
	trials     map[priorKey]int
	gainPrior  map[priorKey]float64
	confPrior  map[priorKey]float64
}

// New constructs an Engine over dimensions with the default 20%
// exploration rate.
func New(dimensions []Dimension, seed int64) *Engine {
	return &Engine{
		dimensions:      dimensions,
		explorationRate: defaultExplorationRate,
		rng:             rand.New(rand.NewSource(seed)),
		trials:          make(map[priorKey]int),
		gainPrior:       make(map[priorKey]float64),
		confPrior:       make(map[priorKey]float64),
	}
}

// SetExplorationRate overrides the default 0.2 rate.
func (e *Engine) SetExplorationRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.explorationRate = rate
}

func (e *Engine) priorFor(key priorKey, dim Dimension) (gain, confidence float64) {
	if g, ok := e.gainPrior[key]; ok {
		gain = g
	} else {
		gain = dim.PriorGain
	}
	if c, ok := e.confPrior[key]; ok {
		confidence = c
	} else {
		confidence = dim.PriorConfidence
	}
	return gain, confidence
}

// estimateGain applies the documented context-aware boosts: high CPU
// residency boosts Priority/Affinity, high FPS variance boosts Timer.
func estimateGain(dim Dimension, baseline observation.Baseline, baseGain float64) float64 {
	gain := baseGain
	switch dim.ChangeType {
	case types.ChangePriority, types.ChangeAffinity:
		if baseline.MeanCPU > 0.8 {
			gain *= 1.3
		}
	case types.ChangeTimer:
		if baseline.FPSVariance > 4.0 {
			gain *= 1.25
		}
	}
	return gain
}

// Generate produces one Hypothesis per dimension, sorted by priority
// descending (spec §4.12).
func (e *Engine) Generate(baseline observation.Baseline, emulatorName string) []Hypothesis {
	e.mu.Lock()
	defer e.mu.Unlock()

	hyps := make([]Hypothesis, 0, len(e.dimensions))
	for _, dim := range e.dimensions {
		if len(dim.DiscreteValues) == 0 {
			continue
		}

		var chosen string
		best := ""
		bestScore := -1.0
		for _, v := range dim.DiscreteValues {
			key := priorKey{dim.ChangeType, v}
			gain, _ := e.priorFor(key, dim)
			if gain > bestScore {
				bestScore = gain
				best = v
			}
		}

		if e.rng.Float64() < e.explorationRate {
			chosen = dim.DiscreteValues[e.rng.Intn(len(dim.DiscreteValues))]
		} else {
			chosen = best
		}

		key := priorKey{dim.ChangeType, chosen}
		gain, confidence := e.priorFor(key, dim)
		gain = estimateGain(dim, baseline, gain)
		if emulatorName != "" {
			confidence = min1(confidence + 0.05)
		}

		priority := gain*confidence*100 + dim.typeBias
		hyps = append(hyps, Hypothesis{
			ChangeType:    dim.ChangeType,
			TargetProcess: dim.TargetProcess,
			ProposedValue: chosen,
			ExpectedGain:  gain,
			Confidence:    confidence,
			Priority:      priority,
		})
	}

	sort.SliceStable(hyps, func(i, j int) bool { return hyps[i].Priority > hyps[j].Priority })
	return hyps
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// UpdateOnOutcome applies the Bayesian update rule for the
// (changeType, proposedValue) prior after a trial completes.
func (e *Engine) UpdateOnOutcome(changeType types.ChangeType, proposedValue string, outcome types.Outcome, actualDelta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := priorKey{changeType, proposedValue}
	e.trials[key]++
	trials := float64(e.trials[key])

	gain := e.gainPrior[key]
	gain = (1-1/trials)*gain + (1/trials)*actualDelta
	e.gainPrior[key] = gain

	conf, ok := e.confPrior[key]
	if !ok {
		for _, dim := range e.dimensions {
			if dim.ChangeType == changeType {
				conf = dim.PriorConfidence
				break
			}
		}
	}
	switch outcome {
	case types.OutcomePositive:
		conf += 0.1
		if conf > 0.95 {
			conf = 0.95
		}
	case types.OutcomeNeutral:
		conf = max0(conf - 0.05)
	default:
		conf = max0(conf - 0.3)
	}
	e.confPrior[key] = conf
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// ResetPriors clears all learned trial/gain/confidence state.
func (e *Engine) ResetPriors() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trials = make(map[priorKey]int)
	e.gainPrior = make(map[priorKey]float64)
	e.confPrior = make(map[priorKey]float64)
}
