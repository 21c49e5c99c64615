// Package rollback implements Emergency Rollback: dumping the Flight
// Recorder and restoring safe defaults on a catastrophic trigger
// (spec §4.5).
package rollback

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/neo-z/zereca/pkg/zereca/flight"
	"github.com/neo-z/zereca/pkg/zereca/state"
)

// Trigger enumerates why a rollback fired.
type Trigger int

const (
	TriggerAppCrash Trigger = iota
	TriggerThermalRunaway
	TriggerBSODSignal
	TriggerWatchdogTimeout
	TriggerPrivilegeLost
	TriggerUserRequested
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerAppCrash:
		return "app_crash"
	case TriggerThermalRunaway:
		return "thermal_runaway"
	case TriggerBSODSignal:
		return "bsod_signal"
	case TriggerWatchdogTimeout:
		return "watchdog_timeout"
	case TriggerPrivilegeLost:
		return "privilege_lost"
	case TriggerUserRequested:
		return "user_requested"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Manager executes Emergency Rollback and tracks the rolled-back flag
// the Arbiter consults on every evaluation.
type Manager struct {
	target   *state.Manager
	recorder *flight.Recorder
	logger   *slog.Logger

	rolledBack atomic.Bool

	onExecuted func(trigger Trigger, success bool)
	onStateChanged func(rolledBack bool)
}

// NewManager constructs a rollback Manager bound to the given Target
// State Manager and Flight Recorder.
func NewManager(target *state.Manager, recorder *flight.Recorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{target: target, recorder: recorder, logger: logger.With("component", "rollback")}
}

// OnExecuted registers the rollbackExecuted callback.
func (m *Manager) OnExecuted(fn func(trigger Trigger, success bool)) { m.onExecuted = fn }

// OnStateChanged registers the rollbackStateChanged callback.
func (m *Manager) OnStateChanged(fn func(rolledBack bool)) { m.onStateChanged = fn }

// RolledBack reports whether a rollback is currently in effect.
func (m *Manager) RolledBack() bool { return m.rolledBack.Load() }

// Execute dumps the Flight Recorder with trigger's name, resets the
// Target State to safe defaults, and sets the rolled-back flag.
func (m *Manager) Execute(trigger Trigger) error {
	_, dumpErr := m.recorder.Dump(trigger.String())
	if dumpErr != nil {
		m.logger.Error("flight recorder dump failed during rollback", "error", dumpErr)
	}

	resetErr := m.target.ResetToDefaults()
	if resetErr != nil {
		m.logger.Error("failed to reset target state during rollback", "error", resetErr)
	}

	success := dumpErr == nil && resetErr == nil
	m.rolledBack.Store(true)

	if m.onExecuted != nil {
		m.onExecuted(trigger, success)
	}
	if m.onStateChanged != nil {
		m.onStateChanged(true)
	}

	if !success {
		return fmt.Errorf("rollback: partial failure (dump_err=%v reset_err=%v)", dumpErr, resetErr)
	}
	return nil
}

// Acknowledge clears the rolled-back flag, letting the Arbiter accept
// new proposals again.
func (m *Manager) Acknowledge() {
	m.rolledBack.Store(false)
	if m.onStateChanged != nil {
		m.onStateChanged(false)
	}
}
