package sensitivity

// HostNormalizer holds the device/host side of the Master Equation:
// mouse DPI, the host pointer-speed scalar, acceleration compensation,
// screen geometry/refresh, and the horizontal FOV used to turn a pixel
// delta into an angular one.
type HostNormalizer struct {
	MouseDPI                 float64
	PointerSpeedScalar       float64 // W_s
	AccelCompensationEnabled bool
	ScreenWidth              int
	ScreenHeight             int
	RefreshHz                float64
	HorizontalFOVDeg         float64
}

// RefDPI is the reference DPI the Master Equation normalizes against.
const RefDPI = 800.0

// AngularConstant is α, the default pixel→angular constant at 1080p
// reference (deg/px).
const AngularConstant = 0.022

// DefaultHostNormalizer matches the original engine's safe defaults:
// 800 DPI, unity pointer scalar, no acceleration compensation.
func DefaultHostNormalizer() HostNormalizer {
	return HostNormalizer{
		MouseDPI:           800,
		PointerSpeedScalar: 1.0,
		ScreenWidth:        1920,
		ScreenHeight:       1080,
		RefreshHz:          60,
		HorizontalFOVDeg:   90,
	}
}

// accelCompensation approximates the inverse of the host pointer
// acceleration curve evaluated at the raw velocity (pipeline step 3).
// Below ~3.5 units/tick it returns 0.3-0.5; it ramps linearly to 1.0
// by 7.0; beyond 7.0 it keeps growing at 0.075 per unit.
func accelCompensation(v float64) float64 {
	const (
		lowBreak  = 3.5
		highBreak = 7.0
	)
	switch {
	case v < lowBreak:
		if v < 0 {
			return 0.3
		}
		return 0.3 + 0.2*(v/lowBreak)
	case v <= highBreak:
		return 0.5 + 0.5*(v-lowBreak)/(highBreak-lowBreak)
	default:
		return 1.0 + 0.075*(v-highBreak)
	}
}

// ApplyPointerScale performs pipeline step 3: multiply by W_s, first
// dividing by the host acceleration approximation when requested.
func (h HostNormalizer) ApplyPointerScale(dx, dy, rawVelocity float64) (float64, float64) {
	scale := h.PointerSpeedScalar
	if h.AccelCompensationEnabled {
		comp := accelCompensation(rawVelocity)
		if comp > 0 {
			scale /= comp
		}
	}
	return dx * scale, dy * scale
}

// NormalizeByDPI performs pipeline step 2: (dx, dy) /= mouse_dpi.
func (h HostNormalizer) NormalizeByDPI(dx, dy float64) (float64, float64) {
	dpi := h.MouseDPI
	if dpi <= 0 {
		return dx, dy
	}
	return dx / dpi, dy / dpi
}
