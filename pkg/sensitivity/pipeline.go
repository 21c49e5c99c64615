package sensitivity

import (
	"math"
	"sync"
	"time"

	"github.com/neo-z/zereca/pkg/sysutil"
)

// Parameters is the mutable configuration owned exclusively by the
// Pipeline. Setters clamp silently and are idempotent; the hot path
// takes a short-lived snapshot of Parameters at the start of each
// event (stage 1) so every stage of that event observes one coherent
// set of values.
type Parameters struct {
	SensitivityX float64
	SensitivityY float64

	AxisMultiplierX float64
	AxisMultiplierY float64
	GainFactor      float64 // k

	SmoothingMs     float64
	SlowZonePercent float64

	VelocityCurve VelocityCurve

	HostNormalizer     HostNormalizer
	EmulatorTranslator EmulatorTranslator

	InputAuthorityEnabled bool
	SimulateMode          bool
	ADBMode               bool
	SafeZoneClampEnabled  bool
}

// DefaultParameters reproduces the original engine's safe defaults:
// unity sensitivity, 800 DPI, gain factor 0.6, 16ms smoothing, 20%
// slow zone ("headshot sweet spot"), Linear curve, authority off.
func DefaultParameters() Parameters {
	return Parameters{
		SensitivityX:          1.0,
		SensitivityY:          1.0,
		AxisMultiplierX:       0.0,
		AxisMultiplierY:       0.0,
		GainFactor:            0.6,
		SmoothingMs:           16.0,
		SlowZonePercent:       20.0,
		VelocityCurve:         NewVelocityCurve(CurveLinear),
		HostNormalizer:        DefaultHostNormalizer(),
		EmulatorTranslator:    DefaultEmulatorTranslator(),
		InputAuthorityEnabled: false,
		SafeZoneClampEnabled:  true,
	}
}

// clamp enforces every invariant listed in the data model section for
// Pipeline Parameters. Called on construction and after every setter.
func (p *Parameters) clamp() {
	p.SensitivityX = sysutil.Clamp(p.SensitivityX, 0.01, 10.0)
	p.SensitivityY = sysutil.Clamp(p.SensitivityY, 0.01, 10.0)
	p.AxisMultiplierX = sysutil.Clamp(p.AxisMultiplierX, -1.0, 1.0)
	p.AxisMultiplierY = sysutil.Clamp(p.AxisMultiplierY, -1.0, 1.0)
	p.GainFactor = sysutil.Clamp(p.GainFactor, 0.1, 1.0)
	p.SmoothingMs = sysutil.Clamp(p.SmoothingMs, 0, 200)
	p.SlowZonePercent = sysutil.Clamp(p.SlowZonePercent, 1, 100)
	p.HostNormalizer.MouseDPI = sysutil.Clamp(p.HostNormalizer.MouseDPI, 100, 16000)
	p.EmulatorTranslator.SensitivityScalar = sysutil.Clamp(p.EmulatorTranslator.SensitivityScalar, 0.1, 10.0)
	p.EmulatorTranslator.ResolutionScale = sysutil.Clamp(p.EmulatorTranslator.ResolutionScale, 0.1, 4.0)
}

// Snapshot is the subset of Parameters captured by Pipeline.Snapshot
// and restored by Pipeline.Rollback: the user-visible tunables, not
// the full device/emulator configuration.
type Snapshot struct {
	SensitivityX    float64
	SensitivityY    float64
	AxisMultiplierX float64
	AxisMultiplierY float64
	GainFactor      float64
	SmoothingMs     float64
	SlowZonePercent float64
	MouseDPI        float64
}

// Pipeline is the per-event transform orchestrator. A zero Pipeline is
// not ready to use; construct with NewPipeline.
type Pipeline struct {
	mu sync.Mutex

	params Parameters

	snapshot    Snapshot
	hasSnapshot bool

	prevSmoothed vec2
	haveSmoothed bool
	prevEventMs  float64
	haveEvent    bool

	drag dragHistory

	onSettingsChanged func()
	onInputProcessed  func(InputState)

	latency rollingLatency
}

// NewPipeline constructs a Pipeline with the given starting
// parameters, clamped to their documented ranges.
func NewPipeline(params Parameters) *Pipeline {
	params.clamp()
	return &Pipeline{params: params}
}

// OnSettingsChanged registers the callback invoked by Rollback, the
// typed-event-channel replacement for the original's settingsChanged
// signal.
func (p *Pipeline) OnSettingsChanged(fn func()) { p.onSettingsChanged = fn }

// OnInputProcessed registers the callback invoked at the end of every
// Process call, the replacement for the inputProcessed signal. This is
// the hottest of hot paths: callers must not block here.
func (p *Pipeline) OnInputProcessed(fn func(InputState)) { p.onInputProcessed = fn }

// Params returns a copy of the current parameters under a short lock.
func (p *Pipeline) Params() Parameters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

// SetParams replaces the full parameter set atomically, clamping
// first. Never call from within Process or any pipeline callback.
func (p *Pipeline) SetParams(params Parameters) {
	params.clamp()
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
}

// Mutate applies fn to a copy of the current parameters under a short
// lock, clamps, and stores the result. The write-behind channel
// described in the design notes should funnel UI-thread setters
// through this rather than mutating Pipeline fields directly.
func (p *Pipeline) Mutate(fn func(*Parameters)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.params)
	p.params.clamp()
}

// TakeSnapshot copies the user-visible tunables into the snapshot slot,
// overwriting any previous snapshot.
func (p *Pipeline) TakeSnapshot() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = Snapshot{
		SensitivityX:    p.params.SensitivityX,
		SensitivityY:    p.params.SensitivityY,
		AxisMultiplierX: p.params.AxisMultiplierX,
		AxisMultiplierY: p.params.AxisMultiplierY,
		GainFactor:      p.params.GainFactor,
		SmoothingMs:     p.params.SmoothingMs,
		SlowZonePercent: p.params.SlowZonePercent,
		MouseDPI:        p.params.HostNormalizer.MouseDPI,
	}
	p.hasSnapshot = true
}

// HasSnapshot reports whether a snapshot is available to roll back to.
func (p *Pipeline) HasSnapshot() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasSnapshot
}

// Rollback restores the tunables captured by TakeSnapshot and fires
// the settings-changed callback. A no-op if no snapshot was taken.
func (p *Pipeline) Rollback() {
	p.mu.Lock()
	if !p.hasSnapshot {
		p.mu.Unlock()
		return
	}
	s := p.snapshot
	p.params.SensitivityX = s.SensitivityX
	p.params.SensitivityY = s.SensitivityY
	p.params.AxisMultiplierX = s.AxisMultiplierX
	p.params.AxisMultiplierY = s.AxisMultiplierY
	p.params.GainFactor = s.GainFactor
	p.params.SmoothingMs = s.SmoothingMs
	p.params.SlowZonePercent = s.SlowZonePercent
	p.params.HostNormalizer.MouseDPI = s.MouseDPI
	p.params.clamp()
	p.mu.Unlock()

	if p.onSettingsChanged != nil {
		p.onSettingsChanged()
	}
}

// rollingLatency tracks a simple exponential rolling estimate of
// per-event processing latency (pipeline step 11).
type rollingLatency struct {
	ema   *sysutil.EMA
	value float64
}

func (r *rollingLatency) observe(d time.Duration) {
	if r.ema == nil {
		r.ema = sysutil.NewEMA(0.2)
	}
	r.value = r.ema.Next(float64(d.Microseconds()) / 1000.0)
}

// LatencyMs returns the rolling estimate of Process latency in
// milliseconds, 0 before the first event.
func (p *Pipeline) LatencyMs() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latency.value
}

// Process runs one InputState through the full transform chain
// (spec §4.1, steps 1-12) and returns the final state. It never
// returns an error: out-of-range timing or NaN inputs degrade to an
// identity transform for that stage only.
func (p *Pipeline) Process(raw InputState, nowMs float64) InputState {
	start := time.Now()

	p.mu.Lock()
	params := p.params
	p.mu.Unlock()

	// Step 1: authority gate / safe pass-through.
	if !params.InputAuthorityEnabled || params.SimulateMode {
		out := raw
		out.recompute()
		out.Stage = StageFinal
		p.emitProcessed(out)
		return out
	}

	dx, dy := raw.DeltaX, raw.DeltaY
	rawVelocity := math.Hypot(dx, dy)

	// Step 2: DPI normalization.
	dx, dy = params.HostNormalizer.NormalizeByDPI(dx, dy)

	// Step 3: host pointer scale (with optional accel compensation).
	dx, dy = params.HostNormalizer.ApplyPointerScale(dx, dy, rawVelocity)

	// Step 4: resolution normalization (ADB-gated).
	dx, dy = params.EmulatorTranslator.ApplyResolution(dx, dy, params.ADBMode)

	// Step 5: center-zero axis gain.
	gainX := 1 + params.GainFactor*params.AxisMultiplierX
	gainY := 1 + params.GainFactor*params.AxisMultiplierY
	dx *= gainX
	dy *= gainY

	// Step 6: velocity curve.
	v := math.Hypot(dx, dy)
	c := params.VelocityCurve.Evaluate(v)
	dx *= c
	dy *= c

	// Step 7: angular-velocity slow zone.
	deltaMs, haveDelta := p.intervalSince(nowMs)
	dx, dy = p.applySlowZone(dx, dy, v, deltaMs, haveDelta, params.SlowZonePercent)

	// Step 8: time-based exponential smoothing.
	dx, dy = p.applySmoothing(dx, dy, deltaMs, haveDelta, params.SmoothingMs)

	// Step 9: repetition-drag limiter.
	damp := p.drag.dampingFor(dx, dy)
	dx *= damp
	dy *= damp
	p.drag.push(dx, dy)

	// Step 10: final multipliers + safe-zone clamp.
	dx *= params.SensitivityX
	dy *= params.SensitivityY
	if params.SafeZoneClampEnabled {
		dx = sysutil.Clamp(dx, -100, 100)
		dy = sysutil.Clamp(dy, -100, 100)
	}

	out := raw.withDelta(dx, dy)
	out.Stage = StageFinal

	// Step 11: latency accounting.
	p.mu.Lock()
	p.latency.observe(time.Since(start))
	p.mu.Unlock()

	// Step 12: emit inputProcessed.
	p.emitProcessed(out)
	return out
}

func (p *Pipeline) emitProcessed(s InputState) {
	if p.onInputProcessed != nil {
		p.onInputProcessed(s)
	}
}

// intervalSince returns the elapsed milliseconds since the previous
// event and records nowMs for next time. ok is false on the first
// event, when there is no prior timestamp to diff against.
func (p *Pipeline) intervalSince(nowMs float64) (deltaMs float64, ok bool) {
	if !p.haveEvent {
		p.prevEventMs = nowMs
		p.haveEvent = true
		return 0, false
	}
	deltaMs = nowMs - p.prevEventMs
	p.prevEventMs = nowMs
	return deltaMs, true
}

const (
	slowZoneOmegaMax = 500.0
	slowZoneGamma    = 2.0
	slowZoneRatioFloor = 0.001
)

// applySlowZone implements pipeline step 7. dt is the raw
// milliseconds-since-last-event computed by intervalSince; per spec,
// dt<=0 (including the very first event, where ok is false) makes
// this stage a no-op.
func (p *Pipeline) applySlowZone(dx, dy, v, deltaMs float64, ok bool, slowZonePercent float64) (float64, float64) {
	if !ok || deltaMs <= 0 || math.IsNaN(deltaMs) {
		return dx, dy
	}
	dtSec := deltaMs / 1000.0
	if dtSec < slowZoneRatioFloor {
		dtSec = slowZoneRatioFloor
	}
	omega := v / dtSec
	omegaThreshold := slowZoneOmegaMax * slowZonePercent / 100.0
	if omegaThreshold <= 0 || omega >= omegaThreshold {
		return dx, dy
	}
	ratio := omega / omegaThreshold
	if ratio < slowZoneRatioFloor {
		ratio = slowZoneRatioFloor
	}
	factor := sysutil.Pow(ratio, slowZoneGamma)
	return dx * factor, dy * factor
}

// applySmoothing implements pipeline step 8: exponential time-based
// smoothing with time constant tau = max(1, smoothingMs^1.35). When
// smoothingMs is 0, lambda is 0 and the stage passes through
// unchanged. deltaMs<=0 (or the first event) also passes through,
// since there is no elapsed time to decay over.
func (p *Pipeline) applySmoothing(dx, dy, deltaMs float64, haveDelta bool, smoothingMs float64) (float64, float64) {
	if !p.haveSmoothed {
		p.prevSmoothed = vec2{dx, dy}
		p.haveSmoothed = true
		return dx, dy
	}
	if smoothingMs <= 0 || !haveDelta || deltaMs <= 0 || math.IsNaN(deltaMs) {
		p.prevSmoothed = vec2{dx, dy}
		return dx, dy
	}

	tau := math.Max(1, math.Pow(smoothingMs, 1.35))
	lambda := math.Exp(-deltaMs / tau)

	sx := lambda*p.prevSmoothed.x + (1-lambda)*dx
	sy := lambda*p.prevSmoothed.y + (1-lambda)*dy
	p.prevSmoothed = vec2{sx, sy}
	return sx, sy
}
