// Package arbiter implements the Arbiter: the gate that approves or
// rejects optimization proposals by confidence, probation, privilege,
// cooldown, and rollback state (spec §4.7).
package arbiter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/probation"
)

// Proposal is an Optimization Proposal awaiting a decision.
type Proposal struct {
	ChangeType     types.ChangeType
	TargetProcess  string
	CurrentValue   string
	ProposedValue  string
	ExpectedGain   float64
	Confidence     float64
	ShadowTestable bool
}

// ConfigHash is the probation key for this proposal's change.
func (p Proposal) ConfigHash() types.ConfigHash {
	return types.HashProposal(p.ChangeType, p.CurrentValue, p.ProposedValue)
}

// Reason enumerates why a proposal was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonRollbackActive
	ReasonLowEmulatorConfidence
	ReasonOnProbation
	ReasonPrivilegeRequired
	ReasonCooldownActive
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonRollbackActive:
		return "RollbackActive"
	case ReasonLowEmulatorConfidence:
		return "LowEmulatorConfidence"
	case ReasonOnProbation:
		return "OnProbation"
	case ReasonPrivilegeRequired:
		return "PrivilegeRequired"
	case ReasonCooldownActive:
		return "CooldownActive"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// minEmulatorConfidence is a locked invariant (spec §4.7 rule 2, §9).
const minEmulatorConfidence = 0.75

// Decision is the Arbiter's verdict on a Proposal.
type Decision struct {
	Approved     bool
	Reason       Reason
	RemainingCooldown time.Duration
}

// Cooldowns per change type (spec §4.7).
var cooldowns = map[types.ChangeType]time.Duration{
	types.ChangePriority:   5 * time.Second,
	types.ChangeIoPriority: 5 * time.Second,
	types.ChangeAffinity:   30 * time.Second,
	types.ChangeTimer:      120 * time.Second,
	types.ChangePowerPlan:  120 * time.Second,
	types.ChangeHPET:       600 * time.Second,
}

// RolledBackChecker reports whether Emergency Rollback is currently
// in effect, satisfied by *rollback.Manager.
type RolledBackChecker interface {
	RolledBack() bool
}

// Arbiter gates proposals against rollback state, emulator confidence,
// probation, privilege tier, and per-type cooldowns.
type Arbiter struct {
	ledger   *probation.Ledger
	rollback RolledBackChecker
	tier     func() types.PrivilegeTier
	context  func() types.SystemContext
	logger   *slog.Logger

	mu            sync.Mutex
	lastApplied   map[types.ChangeType]time.Time

	onApproved func(Proposal)
}

// New constructs an Arbiter. tier and context are callbacks so the
// Arbiter always observes live privilege/context state.
func New(ledger *probation.Ledger, rollback RolledBackChecker, tier func() types.PrivilegeTier, context func() types.SystemContext, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		ledger:      ledger,
		rollback:    rollback,
		tier:        tier,
		context:     context,
		logger:      logger.With("component", "arbiter"),
		lastApplied: make(map[types.ChangeType]time.Time),
	}
}

// OnApproved registers the proposalApproved callback.
func (a *Arbiter) OnApproved(fn func(Proposal)) { a.onApproved = fn }

// Evaluate applies the five ordered rejection rules and, on approval,
// records the cooldown timestamp.
func (a *Arbiter) Evaluate(p Proposal, emulatorConfidence float64) Decision {
	if a.rollback != nil && a.rollback.RolledBack() {
		return Decision{Reason: ReasonRollbackActive}
	}
	if emulatorConfidence < minEmulatorConfidence {
		return Decision{Reason: ReasonLowEmulatorConfidence}
	}
	if a.ledger != nil && a.ledger.IsOnProbation(p.ConfigHash(), a.context(), time.Now()) {
		return Decision{Reason: ReasonOnProbation}
	}
	if p.ChangeType.RequiresOperator() && a.tier() != types.PrivilegeOperator {
		return Decision{Reason: ReasonPrivilegeRequired}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cooldown := cooldowns[p.ChangeType]
	if last, ok := a.lastApplied[p.ChangeType]; ok {
		elapsed := time.Since(last)
		if elapsed < cooldown {
			return Decision{Reason: ReasonCooldownActive, RemainingCooldown: cooldown - elapsed}
		}
	}

	a.lastApplied[p.ChangeType] = time.Now()
	if a.onApproved != nil {
		a.onApproved(p)
	}
	return Decision{Approved: true, Reason: ReasonNone}
}
