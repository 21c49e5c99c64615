package arbiter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/probation"
)

type fakeRollback struct{ rolledBack bool }

func (f *fakeRollback) RolledBack() bool { return f.rolledBack }

func newTestArbiter(t *testing.T, rolledBack bool, tier types.PrivilegeTier) (*Arbiter, *probation.Ledger) {
	t.Helper()
	ledger, err := probation.NewLedger(filepath.Join(t.TempDir(), "probation.json"))
	require.NoError(t, err)
	rb := &fakeRollback{rolledBack: rolledBack}
	a := New(ledger, rb, func() types.PrivilegeTier { return tier }, func() types.SystemContext { return types.SystemContext{} }, nil)
	return a, ledger
}

func priorityProposal() Proposal {
	return Proposal{
		ChangeType:    types.ChangePriority,
		TargetProcess: "game.exe",
		CurrentValue:  "NORMAL",
		ProposedValue: "HIGH",
		ExpectedGain:  0.05,
		Confidence:    0.9,
	}
}

// S3 — Arbiter confidence gate.
func TestArbiterRejectsLowEmulatorConfidence(t *testing.T) {
	a, _ := newTestArbiter(t, false, types.PrivilegeStandard)
	d := a.Evaluate(priorityProposal(), 0.74)
	require.False(t, d.Approved)
	require.Equal(t, ReasonLowEmulatorConfidence, d.Reason)
}

func TestArbiterApprovesAboveThreshold(t *testing.T) {
	a, _ := newTestArbiter(t, false, types.PrivilegeStandard)
	d := a.Evaluate(priorityProposal(), 0.76)
	require.True(t, d.Approved)
}

func TestArbiterRejectsWhileRolledBack(t *testing.T) {
	a, _ := newTestArbiter(t, true, types.PrivilegeStandard)
	d := a.Evaluate(priorityProposal(), 0.99)
	require.False(t, d.Approved)
	require.Equal(t, ReasonRollbackActive, d.Reason)
}

func TestArbiterRejectsOnProbation(t *testing.T) {
	a, ledger := newTestArbiter(t, false, types.PrivilegeStandard)
	p := priorityProposal()
	require.NoError(t, ledger.RecordFailure(p.ConfigHash(), types.SeverityCritical, types.SystemContext{}, time.Now()))

	d := a.Evaluate(p, 0.99)
	require.False(t, d.Approved)
	require.Equal(t, ReasonOnProbation, d.Reason)
}

func TestArbiterRejectsPrivilegeRequired(t *testing.T) {
	a, _ := newTestArbiter(t, false, types.PrivilegeStandard)
	p := Proposal{ChangeType: types.ChangeHPET, CurrentValue: "disabled", ProposedValue: "enabled"}
	d := a.Evaluate(p, 0.99)
	require.False(t, d.Approved)
	require.Equal(t, ReasonPrivilegeRequired, d.Reason)
}

func TestArbiterOperatorTierAllowsPrivilegedChange(t *testing.T) {
	a, _ := newTestArbiter(t, false, types.PrivilegeOperator)
	p := Proposal{ChangeType: types.ChangeHPET, CurrentValue: "disabled", ProposedValue: "enabled"}
	d := a.Evaluate(p, 0.99)
	require.True(t, d.Approved)
}

func TestArbiterCooldownBlocksRepeat(t *testing.T) {
	a, _ := newTestArbiter(t, false, types.PrivilegeStandard)
	p := priorityProposal()

	first := a.Evaluate(p, 0.99)
	require.True(t, first.Approved)

	second := a.Evaluate(p, 0.99)
	require.False(t, second.Approved)
	require.Equal(t, ReasonCooldownActive, second.Reason)
	require.Greater(t, second.RemainingCooldown, time.Duration(0))
	require.LessOrEqual(t, second.RemainingCooldown, 5*time.Second)
}

func TestArbiterApprovedCallbackFires(t *testing.T) {
	a, _ := newTestArbiter(t, false, types.PrivilegeStandard)
	var got Proposal
	a.OnApproved(func(p Proposal) { got = p })

	p := priorityProposal()
	d := a.Evaluate(p, 0.99)
	require.True(t, d.Approved)
	require.Equal(t, p.TargetProcess, got.TargetProcess)
}
