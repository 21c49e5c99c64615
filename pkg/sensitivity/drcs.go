package sensitivity

import "math"

// drcsRingSize is the default bounded ring depth for DRCS direction
// history.
const drcsRingSize = 20

// DRCS is the Directional Repetition Constraint System: a
// cosine-similarity repetition detector feeding a sigmoid suppression
// factor, kept as an alternate to the Pipeline's internal drag
// limiter. Per the design notes only one repetition limiter runs in
// the hot path at a time; DRCS is disabled by default and must be
// wired in explicitly in place of the Pipeline's stage 9.
type DRCS struct {
	DirectionThreshold float64 // cosine similarity floor to count as "repeated"
	ResetThreshold      float64 // cosine similarity floor below which the score decays
	MicroVarianceCV     float64 // coefficient-of-variation threshold for the jitter bypass
	SigmoidSlope        float64 // a in 1/(1+exp(a*(R-R0)))
	SigmoidMidpoint     float64 // R0
	SuppressionFloor    float64
	SuppressionCeil     float64

	ring   [drcsRingSize]vec2
	mags   [drcsRingSize]float64
	count  int
	next   int
	score  float64
}

// NewDRCS returns a DRCS with the documented defaults: direction
// threshold 0.95, micro-variance CV threshold 0.05.
func NewDRCS() *DRCS {
	return &DRCS{
		DirectionThreshold: 0.95,
		ResetThreshold:     0.3,
		MicroVarianceCV:    0.05,
		SigmoidSlope:       6.0,
		SigmoidMidpoint:    1.0,
		SuppressionFloor:   0.15,
		SuppressionCeil:    1.0,
	}
}

// ApplyToInput multiplies (dx, dy) in place by the current suppression
// factor, then folds the new vector into the ring.
func (d *DRCS) ApplyToInput(dx, dy *float64) {
	factor := d.suppression()
	*dx *= factor
	*dy *= factor
	d.push(vec2{*dx, *dy})
}

// suppression computes the sigmoid suppression factor from the
// current repetition score, clamped to [SuppressionFloor,
// SuppressionCeil].
func (d *DRCS) suppression() float64 {
	d.recomputeScore()
	s := 1.0 / (1.0 + math.Exp(d.SigmoidSlope*(d.score-d.SigmoidMidpoint)))
	if s < d.SuppressionFloor {
		return d.SuppressionFloor
	}
	if s > d.SuppressionCeil {
		return d.SuppressionCeil
	}
	return s
}

// recomputeScore computes the weighted repetition score against the
// most recent ring entry, applies the micro-variance bypass, and
// decays the score on a large direction change.
func (d *DRCS) recomputeScore() {
	if d.count == 0 {
		d.score = 0
		return
	}
	latest := d.at(0)

	var score float64
	var simSum float64
	var simCount int
	for i := 0; i < d.count; i++ {
		e := d.at(i)
		sim := cosineSimilarity(latest, e)
		simSum += sim
		simCount++
		if sim >= d.DirectionThreshold {
			score += math.Exp(-0.3 * float64(i))
		}
	}

	if d.coefficientOfVariation() > d.MicroVarianceCV {
		score *= 0.5
	} else if simCount > 0 {
		avgSim := simSum / float64(simCount)
		if avgSim >= 0.95 && avgSim <= 0.99 {
			score *= 0.5
		}
	}

	if simCount > 0 && simSum/float64(simCount) < d.ResetThreshold {
		score *= 0.5
	}

	d.score = score
}

// coefficientOfVariation is std-dev/mean of the magnitudes currently
// held in the ring, the micro-variance bypass signal.
func (d *DRCS) coefficientOfVariation() float64 {
	if d.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < d.count; i++ {
		sum += d.mags[i]
	}
	mean := sum / float64(d.count)
	if mean <= 0 {
		return 0
	}
	var variance float64
	for i := 0; i < d.count; i++ {
		diff := d.mags[i] - mean
		variance += diff * diff
	}
	variance /= float64(d.count)
	return math.Sqrt(variance) / mean
}

func (d *DRCS) push(v vec2) {
	idx := d.next % drcsRingSize
	d.ring[idx] = v
	d.mags[idx] = v.mag()
	d.next++
	if d.count < drcsRingSize {
		d.count++
	}
}

// at returns the i-th most recent entry (0 = newest).
func (d *DRCS) at(i int) vec2 {
	idx := (d.next - 1 - i + drcsRingSize*2) % drcsRingSize
	return d.ring[idx]
}

// Score exposes the current repetition score for diagnostics/tests.
func (d *DRCS) Score() float64 { return d.score }
