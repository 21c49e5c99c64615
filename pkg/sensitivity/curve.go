package sensitivity

import "github.com/neo-z/zereca/pkg/sysutil"

// CurvePreset names a fixed velocity-curve tuple. Editing any field of
// a VelocityCurve through its setters flips Preset to Custom.
type CurvePreset int

const (
	CurveLinear CurvePreset = iota
	CurveSCurve
	CurveOneTap
	CurveRedZone
	CurveCustom
)

func (p CurvePreset) String() string {
	switch p {
	case CurveLinear:
		return "Linear"
	case CurveSCurve:
		return "SCurve"
	case CurveOneTap:
		return "OneTap"
	case CurveRedZone:
		return "RedZone"
	case CurveCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// VelocityCurve is the pure function v -> C(v) used at pipeline step 6.
// Presets reproduce the tuned tuples from the original sensitivity
// engine; Custom lets a caller supply its own thresholds/multipliers.
type VelocityCurve struct {
	Preset       CurvePreset
	LowThreshold float64
	HighThreshold float64
	LowMult      float64
	MidMult      float64
	HighMult     float64
}

// curvePresets holds the fixed tuples. Values come from the original
// C++ velocity curve presets: low/high thresholds in units/tick, and
// the low/mid/high multipliers they blend between.
var curvePresets = map[CurvePreset]VelocityCurve{
	CurveLinear:  {CurveLinear, 0.5, 5.0, 1.0, 1.0, 1.0},
	CurveSCurve:  {CurveSCurve, 0.3, 4.0, 0.85, 1.0, 1.15},
	CurveOneTap:  {CurveOneTap, 0.2, 3.0, 0.7, 0.95, 1.1},
	CurveRedZone: {CurveRedZone, 0.5, 6.0, 0.9, 1.0, 1.3},
}

// NewVelocityCurve returns the curve tuple for a known preset. Custom
// returns the Linear tuple with its Preset field overwritten, since a
// Custom curve has no canonical default and callers are expected to
// set fields immediately via SetCustom.
func NewVelocityCurve(preset CurvePreset) VelocityCurve {
	if c, ok := curvePresets[preset]; ok {
		return c
	}
	c := curvePresets[CurveLinear]
	c.Preset = CurveCustom
	return c
}

// SetCustom overwrites the curve's thresholds/multipliers and flips
// Preset to Custom, per spec: "user edit to any field flips preset to
// Custom."
func (c *VelocityCurve) SetCustom(low, high, lowMult, midMult, highMult float64) {
	c.LowThreshold = low
	c.HighThreshold = high
	c.LowMult = lowMult
	c.MidMult = midMult
	c.HighMult = highMult
	c.Preset = CurveCustom
}

// SetPreset re-applies a named preset tuple. Setting a preset that is
// already active is a documented no-op (spec §8 idempotence law).
func (c *VelocityCurve) SetPreset(preset CurvePreset) {
	if c.Preset == preset {
		return
	}
	*c = NewVelocityCurve(preset)
}

// Evaluate computes C(v), the velocity-dependent multiplier, with a
// two-segment smoothstep blend between low/mid and mid/high.
func (c VelocityCurve) Evaluate(v float64) float64 {
	switch {
	case v <= c.LowThreshold:
		return c.LowMult
	case v >= c.HighThreshold:
		return c.HighMult
	}

	span := c.HighThreshold - c.LowThreshold
	if span <= 0 {
		return c.LowMult
	}
	t := (v - c.LowThreshold) / span

	if t < 0.5 {
		s := sysutil.Smoothstep(2 * t)
		return c.LowMult + s*(c.MidMult-c.LowMult)
	}
	s := sysutil.Smoothstep(2 * (t - 0.5))
	return c.MidMult + s*(c.HighMult-c.MidMult)
}

// Label returns the UI-facing name for this preset, matching the
// labels from the original setter log lines. Purely cosmetic; not
// load-bearing on any computation.
func (c CurvePreset) Label() string {
	switch c {
	case CurveLinear:
		return "Linear"
	case CurveSCurve:
		return "S-Curve"
	case CurveOneTap:
		return "One-Tap"
	case CurveRedZone:
		return "Red Zone"
	case CurveCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}
