package probation

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neo-z/zereca/pkg/types"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(filepath.Join(t.TempDir(), "probation.json"))
	require.NoError(t, err)
	return l
}

// S6 — probation resurrection rules across severities.
func TestLedgerResurrectionRules(t *testing.T) {
	l := newLedger(t)
	now := time.Now()

	hashA := types.HashProposal(types.ChangePowerPlan, "balanced", "ultimate")
	hashB := types.HashProposal(types.ChangeTimer, "default", "0.5ms")
	hashC := types.HashProposal(types.ChangeAffinity, "all_cores", "gold_cores")

	ctxV1 := types.SystemContext{GPUDriverVersion: "1", OSBuild: "1"}
	ctxV2 := types.SystemContext{GPUDriverVersion: "2", OSBuild: "1"}

	require.NoError(t, l.RecordFailure(hashA, types.SeverityCritical, ctxV1, now))
	require.NoError(t, l.RecordFailure(hashB, types.SeverityMedium, ctxV1, now))
	require.NoError(t, l.RecordFailure(hashC, types.SeverityLow, ctxV1, now))

	// CRITICAL never resurrects, even under a shifted context or far
	// into the future.
	require.True(t, l.IsOnProbation(hashA, ctxV2, now.Add(365*24*time.Hour)))

	// MEDIUM resurrects only once the context has shifted.
	require.True(t, l.IsOnProbation(hashB, ctxV1, now.Add(time.Hour)))
	require.False(t, l.IsOnProbation(hashB, ctxV2, now.Add(time.Second)))

	// LOW resurrects after its backoff window (5 minutes at
	// multiplier 1) elapses.
	require.True(t, l.IsOnProbation(hashC, ctxV1, now.Add(1*time.Minute)))
	require.False(t, l.IsOnProbation(hashC, ctxV1, now.Add(6*time.Minute)))
}

func TestLedgerLowSeverityBackoffDoubles(t *testing.T) {
	l := newLedger(t)
	now := time.Now()
	hash := types.HashProposal(types.ChangePriority, "NORMAL", "HIGH")
	ctx := types.SystemContext{}

	require.NoError(t, l.RecordFailure(hash, types.SeverityLow, ctx, now))
	require.True(t, l.IsOnProbation(hash, ctx, now.Add(4*time.Minute)))
	require.False(t, l.IsOnProbation(hash, ctx, now.Add(6*time.Minute)))

	// Second failure doubles the backoff window to 10 minutes.
	require.NoError(t, l.RecordFailure(hash, types.SeverityLow, ctx, now))
	require.True(t, l.IsOnProbation(hash, ctx, now.Add(9*time.Minute)))
	require.False(t, l.IsOnProbation(hash, ctx, now.Add(11*time.Minute)))
}

func TestLedgerUnknownHashNotOnProbation(t *testing.T) {
	l := newLedger(t)
	require.False(t, l.IsOnProbation(types.ConfigHash(12345), types.SystemContext{}, time.Now()))
}

func TestLedgerPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probation.json")
	l1, err := NewLedger(path)
	require.NoError(t, err)

	hash := types.HashProposal(types.ChangeHPET, "disabled", "enabled")
	require.NoError(t, l1.RecordFailure(hash, types.SeverityCritical, types.SystemContext{}, time.Now()))

	l2, err := NewLedger(path)
	require.NoError(t, err)
	require.True(t, l2.IsOnProbation(hash, types.SystemContext{}, time.Now()))
	require.Equal(t, 1, l2.Count())
}

func TestLedgerClearAll(t *testing.T) {
	l := newLedger(t)
	hash := types.HashProposal(types.ChangeAffinity, "a", "b")
	require.NoError(t, l.RecordFailure(hash, types.SeverityCritical, types.SystemContext{}, time.Now()))
	require.Equal(t, 1, l.Count())

	require.NoError(t, l.ClearAll())
	require.Equal(t, 0, l.Count())
	require.False(t, l.IsOnProbation(hash, types.SystemContext{}, time.Now()))
}
