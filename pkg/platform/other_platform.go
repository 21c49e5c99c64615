//go:build !windows

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// simPlatform is the non-Windows (and test) Platform backend. It has
// no OS hook to install, so InstallMouseHook's onEvent is stored but
// only ever invoked by SimulateEvent, a test helper. Power/timer/
// affinity state lives in memory and round-trips exactly, which is
// what the Reconciler and Arbiter tests rely on.
type simPlatform struct {
	mu sync.Mutex

	onEvent func(MouseEvent)

	powerMode PowerMode
	timerRes  TimerResolution
	parking   bool
	affinity  map[string]string
	elevated  bool

	start time.Time
}

// New returns the simulated Platform used on non-Windows builds and
// in tests. It is functionally complete against the Platform
// interface but does not touch real OS state.
func New() (Platform, error) {
	return &simPlatform{
		powerMode: PowerBalanced,
		timerRes:  TimerDefault,
		parking:   true,
		affinity:  make(map[string]string),
		start:     time.Now(),
	}, nil
}

type simHook struct{ p *simPlatform }

func (h *simHook) Close() error {
	h.p.mu.Lock()
	h.p.onEvent = nil
	h.p.mu.Unlock()
	return nil
}

func (p *simPlatform) InstallMouseHook(onEvent func(MouseEvent)) (Hook, error) {
	p.mu.Lock()
	p.onEvent = onEvent
	p.mu.Unlock()
	return &simHook{p: p}, nil
}

// SimulateEvent lets tests and the non-Windows build path feed a
// synthetic mouse event through whatever hooked onto this platform.
func (p *simPlatform) SimulateEvent(ev MouseEvent) {
	p.mu.Lock()
	onEvent := p.onEvent
	p.mu.Unlock()
	if onEvent != nil {
		onEvent(ev)
	}
}

func (p *simPlatform) InjectInput(deltaX, deltaY int) error { return nil }

func (p *simPlatform) MonotonicMs() float64 {
	return float64(time.Since(p.start).Microseconds()) / 1000.0
}

func (p *simPlatform) ActivePowerMode() (PowerMode, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.powerMode, nil
}

func (p *simPlatform) SetPowerMode(mode PowerMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.powerMode = mode
	return nil
}

func (p *simPlatform) ActiveTimerResolution() (TimerResolution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timerRes, nil
}

func (p *simPlatform) SetTimerResolution(res TimerResolution) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timerRes = res
	return nil
}

func (p *simPlatform) CPUParkingEnabled() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parking, nil
}

func (p *simPlatform) SetCPUParking(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parking = enabled
	return nil
}

func (p *simPlatform) ProcessAffinity(processName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.affinity[processName]; ok {
		return v, nil
	}
	return "all", nil
}

func (p *simPlatform) SetProcessAffinity(processName, coreGroup string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.affinity[processName] = coreGroup
	return nil
}

func (p *simPlatform) SetProcessPriority(processName string, class PriorityClass) error {
	return nil
}

func (p *simPlatform) SetProcessIOPriority(processName string, prio IOPriority) error {
	return nil
}

func (p *simPlatform) PrivilegeTier() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elevated, nil
}

// SetElevated is a test helper simulating a privilege-tier change;
// real elevation on Windows is fixed at process launch.
func (p *simPlatform) SetElevated(elevated bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elevated = elevated
}

var errNotOperator = fmt.Errorf("platform: kernel telemetry requires Operator privileges")

func (p *simPlatform) KernelTelemetry() (float64, float64, float64, error) {
	p.mu.Lock()
	elevated := p.elevated
	p.mu.Unlock()
	if !elevated {
		return 0, 0, 0, errNotOperator
	}
	return 0.42, 1200, 3, nil
}

func (p *simPlatform) AppDataDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "zereca")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("platform: create app data dir: %w", err)
	}
	return path, nil
}
