package collector

import "github.com/dyra-12/cogniviz/internal/snapshot"

// #region budget

// BudgetThreshold is the trip budget. Totals above it are an overrun.
const BudgetThreshold = 1380.0

// Budget update causes produced by selections.
const (
	CauseFlight    = "flight"
	CauseHotel     = "hotel"
	CauseTransport = "transport"
)

func isSelectionCause(cause string) bool {
	return cause == CauseFlight || cause == CauseHotel || cause == CauseTransport
}

// applyBudget advances the overrun/recovery state machine for a new total.
// It reports whether the overrun state changed.
//
// Entering overrun counts one overrun event and restarts the selection
// counter. While in overrun, selection-caused updates are counted; the
// count is committed to cost adjustments once the total is back at or
// below the threshold. Outside overrun, any decrease is one adjustment.
// Decreases that stay above the threshold are not counted.
func applyBudget(b *snapshot.Budget, cause string, total float64) (transitioned bool) {
	prev := b.CurrentTotal
	if !b.InOverrun && total > BudgetThreshold {
		b.BudgetOverrunEvents++
		b.InOverrun = true
		b.OverrunSelectionCounter = 0
		transitioned = true
	}
	if b.InOverrun {
		if isSelectionCause(cause) {
			b.OverrunSelectionCounter++
		}
		if total <= BudgetThreshold {
			b.CostAdjustmentActions += b.OverrunSelectionCounter
			b.InOverrun = false
			b.OverrunSelectionCounter = 0
			transitioned = true
		}
	} else if total < prev {
		b.CostAdjustmentActions++
	}
	b.CurrentTotal = total
	return transitioned
}

// #endregion budget
