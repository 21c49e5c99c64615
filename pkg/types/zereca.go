package types

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// Severity ranks how badly a past optimization failed, driving
// probation resurrection rules (see pkg/zereca/probation).
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ChangeType enumerates the kinds of OS performance-state change the
// Arbiter gates. Only Priority, IoPriority, and Affinity are
// shadow-testable (spec §4.13); the rest require committing directly.
type ChangeType int

const (
	ChangePriority ChangeType = iota
	ChangeIoPriority
	ChangeAffinity
	ChangeTimer
	ChangePowerPlan
	ChangeHPET
)

func (c ChangeType) String() string {
	switch c {
	case ChangePriority:
		return "Priority"
	case ChangeIoPriority:
		return "IoPriority"
	case ChangeAffinity:
		return "Affinity"
	case ChangeTimer:
		return "Timer"
	case ChangePowerPlan:
		return "PowerPlan"
	case ChangeHPET:
		return "Hpet"
	default:
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
}

// RequiresOperator reports whether applying this change requires the
// Operator (elevated) privilege tier.
func (c ChangeType) RequiresOperator() bool {
	switch c {
	case ChangeTimer, ChangePowerPlan, ChangeHPET:
		return true
	default:
		return false
	}
}

// ShadowTestable reports whether Shadow Mode may trial this change
// type before committing it.
func (c ChangeType) ShadowTestable() bool {
	switch c {
	case ChangePriority, ChangeIoPriority, ChangeAffinity:
		return true
	default:
		return false
	}
}

// PrivilegeTier is the elevation level the control plane is currently
// running under. Standard exposes coarse telemetry from external
// hooks; Operator additionally exposes kernel-scheduler tracing.
type PrivilegeTier int

const (
	PrivilegeStandard PrivilegeTier = iota
	PrivilegeOperator
)

func (t PrivilegeTier) String() string {
	if t == PrivilegeOperator {
		return "Operator"
	}
	return "Standard"
}

// RollbackTrigger enumerates why an Emergency Rollback fired.
type RollbackTrigger int

const (
	TriggerAppCrash RollbackTrigger = iota
	TriggerThermalRunaway
	TriggerBSODSignal
	TriggerWatchdogTimeout
	TriggerPrivilegeLost
	TriggerUserRequested
	TriggerManual
)

func (t RollbackTrigger) String() string {
	switch t {
	case TriggerAppCrash:
		return "AppCrash"
	case TriggerThermalRunaway:
		return "ThermalRunaway"
	case TriggerBSODSignal:
		return "BSODSignal"
	case TriggerWatchdogTimeout:
		return "WatchdogTimeout"
	case TriggerPrivilegeLost:
		return "PrivilegeLost"
	case TriggerUserRequested:
		return "UserRequested"
	case TriggerManual:
		return "Manual"
	default:
		return fmt.Sprintf("RollbackTrigger(%d)", int(t))
	}
}

// SystemContext fingerprints the runtime environment at the moment a
// proposal was applied or failed. Probation resurrection for MEDIUM
// severity entries compares the context captured at failure time
// against the current one; any field differing counts as a shift.
type SystemContext struct {
	GPUDriverVersion   string `json:"gpu_driver_version"`
	OSBuild            string `json:"os_build"`
	BIOSVersion        string `json:"bios_version"`
	EmulatorBinaryHash string `json:"emulator_binary_hash"`
}

// HasShiftedFrom reports whether any field of ctx differs from prior,
// the resurrection test for MEDIUM-severity probation entries.
func (ctx SystemContext) HasShiftedFrom(prior SystemContext) bool {
	return ctx.GPUDriverVersion != prior.GPUDriverVersion ||
		ctx.OSBuild != prior.OSBuild ||
		ctx.BIOSVersion != prior.BIOSVersion ||
		ctx.EmulatorBinaryHash != prior.EmulatorBinaryHash
}

// Outcome is the Outcome Classifier's verdict on a completed trial.
type Outcome int

const (
	OutcomePositive Outcome = iota
	OutcomeNeutral
	OutcomeNegativeStability
	OutcomeNegativeSafety
)

func (o Outcome) String() string {
	switch o {
	case OutcomePositive:
		return "POSITIVE"
	case OutcomeNeutral:
		return "NEUTRAL"
	case OutcomeNegativeStability:
		return "NEGATIVE_STABILITY"
	case OutcomeNegativeSafety:
		return "NEGATIVE_SAFETY"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ConfigHash identifies a proposal by change type and value
// transition, so the Probation Ledger can recognize "the same
// change" across process restarts.
type ConfigHash uint64

// HashProposal combines a change type with its old and new values
// into a stable ConfigHash (spec §3: "hash of change_type ⊕ old_value
// ⊕ new_value").
func HashProposal(change ChangeType, oldValue, newValue string) ConfigHash {
	h := fnv.New64a()
	_, _ = h.Write([]byte(change.String()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(oldValue))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(newValue))
	return ConfigHash(h.Sum64())
}

// String renders the hash as a fixed-width hex string, the form it is
// persisted under in the probation ledger JSON.
func (c ConfigHash) String() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(c))
	return fmt.Sprintf("%x", b)
}
