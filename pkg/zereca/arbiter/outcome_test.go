package arbiter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/flight"
	"github.com/neo-z/zereca/pkg/zereca/probation"
)

func TestRecordOutcomeNegativeSafetyAddsCriticalProbation(t *testing.T) {
	ledger, err := probation.NewLedger(filepath.Join(t.TempDir(), "probation.json"))
	require.NoError(t, err)
	a := New(ledger, &fakeRollback{}, func() types.PrivilegeTier { return types.PrivilegeStandard }, func() types.SystemContext { return types.SystemContext{} }, nil)
	recorder := flight.NewRecorder(t.TempDir())

	p := priorityProposal()
	require.NoError(t, a.RecordOutcome(recorder, p, types.OutcomeNegativeSafety, -0.4))

	require.Equal(t, 1, recorder.Count())
	require.True(t, ledger.IsOnProbation(p.ConfigHash(), types.SystemContext{}, time.Now()))
}

func TestRecordOutcomePositiveDoesNotProbate(t *testing.T) {
	ledger, err := probation.NewLedger(filepath.Join(t.TempDir(), "probation.json"))
	require.NoError(t, err)
	a := New(ledger, &fakeRollback{}, func() types.PrivilegeTier { return types.PrivilegeStandard }, func() types.SystemContext { return types.SystemContext{} }, nil)
	recorder := flight.NewRecorder(t.TempDir())

	p := priorityProposal()
	require.NoError(t, a.RecordOutcome(recorder, p, types.OutcomePositive, 0.12))

	require.Equal(t, 1, recorder.Count())
	require.False(t, ledger.IsOnProbation(p.ConfigHash(), types.SystemContext{}, time.Now()))
}
