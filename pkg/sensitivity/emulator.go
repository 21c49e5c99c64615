package sensitivity

// EmulatorTranslator applies a per-emulator sensitivity scalar and a
// resolution scale, gated on ADB mode (pipeline step 4).
type EmulatorTranslator struct {
	Preset           string
	SensitivityScalar float64 // E_s, clamped [0.1, 10.0]
	ResolutionScale   float64 // E_r, clamped [0.1, 4.0]
	EmulatorWidth     int
	EmulatorHeight    int
}

// DefaultEmulatorTranslator is the unscaled identity translator.
func DefaultEmulatorTranslator() EmulatorTranslator {
	return EmulatorTranslator{
		Preset:            "Unknown",
		SensitivityScalar: 1.0,
		ResolutionScale:   1.0,
		EmulatorWidth:     1920,
		EmulatorHeight:    1080,
	}
}

// ApplyResolution performs pipeline step 4: multiply by E_r when
// adb_mode is true, else E_r is treated as 1 (no-op).
func (e EmulatorTranslator) ApplyResolution(dx, dy float64, adbMode bool) (float64, float64) {
	if !adbMode {
		return dx, dy
	}
	return dx * e.ResolutionScale, dy * e.ResolutionScale
}
