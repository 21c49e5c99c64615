package sensitivity

// SetMouseDPI clamps to [100, 16000] and stores the value; a value
// already equal to the clamped result is a no-op write (idempotent).
func (p *Pipeline) SetMouseDPI(dpi float64) {
	p.Mutate(func(params *Parameters) {
		params.HostNormalizer.MouseDPI = dpi
	})
}

// SetSmoothingMs clamps to [0, 200].
func (p *Pipeline) SetSmoothingMs(ms float64) {
	p.Mutate(func(params *Parameters) {
		params.SmoothingMs = ms
	})
}

// SetSlowZonePercent clamps to [1, 100].
func (p *Pipeline) SetSlowZonePercent(pct float64) {
	p.Mutate(func(params *Parameters) {
		params.SlowZonePercent = pct
	})
}

// SetGainFactor clamps to [0.1, 1.0].
func (p *Pipeline) SetGainFactor(k float64) {
	p.Mutate(func(params *Parameters) {
		params.GainFactor = k
	})
}

// SetAxisMultipliers clamps each to [-1, 1].
func (p *Pipeline) SetAxisMultipliers(x, y float64) {
	p.Mutate(func(params *Parameters) {
		params.AxisMultiplierX = x
		params.AxisMultiplierY = y
	})
}

// SetSensitivity clamps each to [0.01, 10.0].
func (p *Pipeline) SetSensitivity(x, y float64) {
	p.Mutate(func(params *Parameters) {
		params.SensitivityX = x
		params.SensitivityY = y
	})
}

// SetInputAuthorityEnabled flips the authority gate (pipeline step 1).
func (p *Pipeline) SetInputAuthorityEnabled(enabled bool) {
	p.Mutate(func(params *Parameters) {
		params.InputAuthorityEnabled = enabled
	})
}

// SetVelocityCurvePreset re-applies a named preset; re-setting the
// active preset is a documented no-op.
func (p *Pipeline) SetVelocityCurvePreset(preset CurvePreset) {
	p.Mutate(func(params *Parameters) {
		params.VelocityCurve.SetPreset(preset)
	})
}

// SetCustomVelocityCurve overwrites the curve tuple and flips the
// preset to Custom.
func (p *Pipeline) SetCustomVelocityCurve(low, high, lowMult, midMult, highMult float64) {
	p.Mutate(func(params *Parameters) {
		params.VelocityCurve.SetCustom(low, high, lowMult, midMult, highMult)
	})
}

// EffectiveMetrics returns the read-only derived metrics (spec §4.1):
// effective sensitivity, cm/360, and effective angular sensitivity,
// computed for the X axis under the current parameter snapshot.
func (p *Pipeline) EffectiveMetrics() (effectiveSensitivity, cmPer360, effectiveAngular float64) {
	params := p.Params()
	gainX := 1 + params.GainFactor*params.AxisMultiplierX
	effectiveSensitivity = EffectiveSensitivity(
		params.EmulatorTranslator.SensitivityScalar,
		params.EmulatorTranslator.ResolutionScale,
		params.HostNormalizer.PointerSpeedScalar,
		params.HostNormalizer.MouseDPI,
		params.SensitivityX,
		gainX,
	)
	cmPer360 = CmPer360(effectiveSensitivity, params.HostNormalizer.MouseDPI)
	effectiveAngular = EffectiveAngularSensitivity(cmPer360)
	return
}

// DragHistoryLen exposes the current drag-history depth for tests
// asserting on "no dragHistory growth" in safe-mode pass-through.
func (p *Pipeline) DragHistoryLen() int { return p.drag.Len() }
