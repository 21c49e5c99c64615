// Package config loads the YAML-backed static configuration for
// Pipeline defaults and Arbiter cooldowns, and watches it for external
// edits so changes can be pushed through a write-behind channel
// instead of mutating live state directly from the watcher goroutine.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// PipelineDefaults mirrors the user-visible subset of Pipeline
// Parameters a static config file may seed at startup.
type PipelineDefaults struct {
	SensitivityX    float64 `yaml:"sensitivity_x"`
	SensitivityY    float64 `yaml:"sensitivity_y"`
	MouseDPI        float64 `yaml:"mouse_dpi"`
	GainFactor      float64 `yaml:"gain_factor"`
	SmoothingMs     float64 `yaml:"smoothing_ms"`
	SlowZonePercent float64 `yaml:"slow_zone_percent"`
	CurvePreset     string  `yaml:"curve_preset"`
}

// ArbiterCooldowns overrides the Arbiter's default per-change-type
// cooldown windows, in seconds.
type ArbiterCooldowns struct {
	PrioritySeconds   float64 `yaml:"priority_seconds"`
	IoPrioritySeconds float64 `yaml:"io_priority_seconds"`
	AffinitySeconds   float64 `yaml:"affinity_seconds"`
	TimerSeconds      float64 `yaml:"timer_seconds"`
	PowerPlanSeconds  float64 `yaml:"power_plan_seconds"`
	HPETSeconds       float64 `yaml:"hpet_seconds"`
}

// Config is the full on-disk shape.
type Config struct {
	AppDataDir string           `yaml:"app_data_dir"`
	Pipeline   PipelineDefaults `yaml:"pipeline"`
	Arbiter    ArbiterCooldowns `yaml:"arbiter"`
}

// Default returns the built-in configuration used when no file is
// present.
func Default() Config {
	return Config{
		AppDataDir: "",
		Pipeline: PipelineDefaults{
			SensitivityX:    1.0,
			SensitivityY:    1.0,
			MouseDPI:        800,
			GainFactor:      0.6,
			SmoothingMs:     16.0,
			SlowZonePercent: 20.0,
			CurvePreset:     "Linear",
		},
		Arbiter: ArbiterCooldowns{
			PrioritySeconds:   5,
			IoPrioritySeconds: 5,
			AffinitySeconds:   30,
			TimerSeconds:      120,
			PowerPlanSeconds:  120,
			HPETSeconds:       600,
		},
	}
}

// Load reads and parses path, falling back to Default on a missing
// file. A malformed file is a hard error — unlike the Target State and
// Probation Ledger, a static config file is operator-authored and a
// typo should surface rather than silently reset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher watches a config file for external edits and delivers
// successfully-reloaded Configs on Changes(). It never pushes directly
// into consumer state; callers drain Changes() on their own goroutine
// (the Pipeline's write-behind channel, per the ambient-stack design).
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan Config

	mu     sync.Mutex
	closed bool
}

// NewWatcher starts watching path's containing directory (so the
// watch survives editors that replace the file via rename) and
// returns a Watcher whose Changes() channel receives each
// successfully reloaded Config.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	w := &Watcher{path: path, watcher: fw, changes: make(chan Config, 1)}

	dir := dirOf(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	go w.loop()
	return w, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// Changes returns the channel of successfully reloaded configs. A
// reload that fails to parse is dropped with no signal — the previous
// in-memory config remains authoritative.
func (w *Watcher) Changes() <-chan Config { return w.changes }

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				continue
			}
			select {
			case <-w.changes:
				// A reload is already pending; replace it with this
				// newer one so the consumer sees the latest edit.
			default:
			}
			w.changes <- cfg
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
