package consumption

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BudgetExceededError reports a positive draw that would push consumption
// past the authorized ceiling. It is never clamped or retried; the enclosing
// business transaction must fail.
type BudgetExceededError struct {
	BoqLineId int
	Dimension string // "quantity" or "amount"
	Requested decimal.Decimal
	Limit     decimal.Decimal
	Shortfall decimal.Decimal
}

func (e BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded on boq line %d: requested %s %s, %s remaining (short by %s)",
		e.BoqLineId, e.Requested, e.Dimension, e.Limit, e.Shortfall)
}

// ConcurrentModificationError reports lock contention on a BOQ line. It is a
// transient failure: the caller may retry the whole transaction.
type ConcurrentModificationError struct {
	BoqLineId int
}

func (e ConcurrentModificationError) Error() string {
	return fmt.Sprintf("boq line %d is locked by a concurrent transaction", e.BoqLineId)
}
