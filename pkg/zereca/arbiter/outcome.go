package arbiter

import (
	"time"

	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/flight"
)

// RecordOutcome writes a Flight Recorder entry for the completed
// trial and, for NEGATIVE_STABILITY or NEGATIVE_SAFETY, adds a
// Probation Entry at MEDIUM or CRITICAL severity respectively
// (spec §4.7).
func (a *Arbiter) RecordOutcome(recorder *flight.Recorder, p Proposal, outcome types.Outcome, delta float64) error {
	if recorder != nil {
		recorder.Append(flight.Record{
			Timestamp:    time.Now(),
			ComponentID:  p.ChangeType.String(),
			OldValue:     p.CurrentValue,
			NewValue:     p.ProposedValue,
			ExpectedGain: p.ExpectedGain,
			ActualDelta:  delta,
		})
	}

	if a.ledger == nil {
		return nil
	}

	var severity types.Severity
	switch outcome {
	case types.OutcomeNegativeStability:
		severity = types.SeverityMedium
	case types.OutcomeNegativeSafety:
		severity = types.SeverityCritical
	default:
		return nil
	}

	ctx := types.SystemContext{}
	if a.context != nil {
		ctx = a.context()
	}
	return a.ledger.RecordFailure(p.ConfigHash(), severity, ctx, time.Now())
}
