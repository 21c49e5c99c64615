// Package detector implements the Emulator Detector: a multi-signal
// process/topology/module scanner producing a per-PID confidence
// score (spec §4.10).
package detector

import (
	"sync"
)

// Signature describes a known mobile-app emulator.
type Signature struct {
	Name             string
	ExecutableNames  []string
	WindowClasses    []string
	RequiredModules  []string
	BaseConfidence   float64
}

// ProcessSnapshot is the scan input for one running process, supplied
// by the platform layer.
type ProcessSnapshot struct {
	PID             int
	ExecutableName  string
	WindowClass     string
	LoadedModules   []string
	ChildProcessCount int
	ExecutableHash  string // hash of the first 64 KiB, the context marker
}

// Info is a provisional or confirmed emulator detection.
type Info struct {
	PID            int
	Signature      string
	Confidence     float64
	ExecutableHash string
}

// Detector scans process snapshots against a fixed signature list and
// tracks which PIDs are currently alive.
type Detector struct {
	signatures []Signature

	mu      sync.Mutex
	active  map[int]Info

	onDetected func(Info)
	onLost     func(pid int)
}

// New constructs a Detector over the given signature list.
func New(signatures []Signature) *Detector {
	return &Detector{signatures: signatures, active: make(map[int]Info)}
}

// DefaultSignatures returns the built-in signature list for the
// mobile-app emulators this detector recognizes out of the box.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Name:            "Bluestacks",
			ExecutableNames: []string{"HD-Player.exe", "Bluestacks.exe", "BluestacksHelper.exe"},
			WindowClasses:   []string{"BlueStacksApp", "BS2CHINAPCKGBDUI"},
			RequiredModules: []string{"aow_exe.dll", "libGLESv2.dll"},
			BaseConfidence:  0.6,
		},
		{
			Name:            "LDPlayer",
			ExecutableNames: []string{"dnplayer.exe", "LdVBoxHeadless.exe", "LdBoxHeadless.exe"},
			WindowClasses:   []string{"LDPlayerMainFrame"},
			RequiredModules: []string{"dnconsole.dll"},
			BaseConfidence:  0.6,
		},
		{
			Name:            "NoxPlayer",
			ExecutableNames: []string{"Nox.exe", "NoxVMHandle.exe", "NoxVMSVC.exe"},
			WindowClasses:   []string{"Qt5QWindowIcon", "Nox"},
			RequiredModules: []string{"libegl.dll"},
			BaseConfidence:  0.6,
		},
		{
			Name:            "MEmu",
			ExecutableNames: []string{"MEmu.exe", "MEmuHeadless.exe", "MEmuConsole.exe"},
			WindowClasses:   []string{"Qt5QWindowIcon"},
			RequiredModules: []string{"MEmuSVC.dll"},
			BaseConfidence:  0.6,
		},
		{
			Name:            "SmartGaGa",
			ExecutableNames: []string{"SmartGaGa.exe", "TurboAndroidPlayer.exe"},
			WindowClasses:   []string{"SmartGaGaWindow"},
			RequiredModules: nil,
			BaseConfidence:  0.5,
		},
	}
}

// OnDetected registers the emulatorDetected callback.
func (d *Detector) OnDetected(fn func(Info)) { d.onDetected = fn }

// OnLost registers the emulatorLost callback.
func (d *Detector) OnLost(fn func(pid int)) { d.onLost = fn }

func matches(snapshot ProcessSnapshot, names []string) bool {
	for _, n := range names {
		if n == snapshot.ExecutableName {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// score computes confidence for snapshot against sig, per the
// weighted-signal rules in spec §4.10.
func score(sig Signature, snapshot ProcessSnapshot) float64 {
	confidence := sig.BaseConfidence

	if containsString(sig.WindowClasses, snapshot.WindowClass) {
		confidence += 0.15
	}

	if len(sig.RequiredModules) > 0 {
		present := 0
		for _, m := range sig.RequiredModules {
			if containsString(snapshot.LoadedModules, m) {
				present++
			}
		}
		confidence += 0.10 * float64(present) / float64(len(sig.RequiredModules))
	}

	switch {
	case snapshot.ChildProcessCount >= 3:
		confidence += 0.10
	case snapshot.ChildProcessCount >= 1:
		confidence += 0.05
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// Scan runs one detection tick over the supplied process snapshots,
// firing onDetected for newly-seen PIDs and onLost for PIDs that have
// disappeared since the previous scan.
func (d *Detector) Scan(snapshots []ProcessSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[int]bool, len(snapshots))
	for _, snap := range snapshots {
		for _, sig := range d.signatures {
			if !matches(snap, sig.ExecutableNames) {
				continue
			}
			info := Info{
				PID:            snap.PID,
				Signature:      sig.Name,
				Confidence:     score(sig, snap),
				ExecutableHash: snap.ExecutableHash,
			}
			seen[snap.PID] = true
			if _, already := d.active[snap.PID]; !already && d.onDetected != nil {
				d.onDetected(info)
			}
			d.active[snap.PID] = info
			break
		}
	}

	for pid := range d.active {
		if !seen[pid] {
			delete(d.active, pid)
			if d.onLost != nil {
				d.onLost(pid)
			}
		}
	}
}

// Primary returns the highest-confidence active detection, and false
// if none are active.
func (d *Detector) Primary() (Info, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var best Info
	found := false
	for _, info := range d.active {
		if !found || info.Confidence > best.Confidence {
			best = info
			found = true
		}
	}
	return best, found
}

// Active returns a copy of all currently-tracked detections.
func (d *Detector) Active() []Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Info, 0, len(d.active))
	for _, info := range d.active {
		out = append(out, info)
	}
	return out
}
