package boq

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestState_CanConsume(t *testing.T) {
	assert.False(t, StateDraft.CanConsume())
	assert.False(t, StateSubmitted.CanConsume())
	assert.True(t, StateApproved.CanConsume())
	assert.True(t, StateLocked.CanConsume())
	assert.False(t, StateClosed.CanConsume())
}

func TestState_Editable(t *testing.T) {
	assert.True(t, StateDraft.Editable())
	assert.True(t, StateSubmitted.Editable())
	assert.False(t, StateApproved.Editable())
	assert.False(t, StateLocked.Editable())
	assert.False(t, StateClosed.Editable())
}

func TestState_CanTransitionTo(t *testing.T) {
	assert.True(t, StateDraft.CanTransitionTo(StateSubmitted))
	assert.True(t, StateSubmitted.CanTransitionTo(StateApproved))
	assert.True(t, StateApproved.CanTransitionTo(StateLocked))
	assert.True(t, StateLocked.CanTransitionTo(StateClosed))

	// No skipping and no going back.
	assert.False(t, StateDraft.CanTransitionTo(StateApproved))
	assert.False(t, StateApproved.CanTransitionTo(StateSubmitted))
	assert.False(t, StateClosed.CanTransitionTo(StateDraft))
	assert.False(t, StateClosed.CanTransitionTo(StateClosed))
}

func TestLine_AuthorizedQuantity(t *testing.T) {
	l := Line{
		Quantity:           decimal.NewFromInt(100),
		AdditionalQuantity: decimal.NewFromInt(15),
		Rate:               decimal.NewFromInt(9),
	}

	assert.True(t, decimal.NewFromInt(115).Equal(l.AuthorizedQuantity()))
	assert.True(t, decimal.NewFromInt(1035).Equal(l.AuthorizedAmount()))
}

func TestLine_Remaining(t *testing.T) {
	l := Line{Quantity: decimal.NewFromInt(50), Rate: decimal.NewFromInt(20)}

	remaining := l.RemainingQuantity(decimal.NewFromInt(12))
	assert.True(t, decimal.NewFromInt(38).Equal(remaining))

	// A reversal-heavy ledger can leave net consumption negative, which
	// simply means more headroom than the original ceiling.
	remaining = l.RemainingQuantity(decimal.NewFromInt(-3))
	assert.True(t, decimal.NewFromInt(53).Equal(remaining))

	amount := l.RemainingAmount(decimal.NewFromInt(400))
	assert.True(t, decimal.NewFromInt(600).Equal(amount))
}

func TestLine_Complete(t *testing.T) {
	l := Line{Quantity: decimal.NewFromInt(10)}

	assert.False(t, l.Complete(Usage{ConsumedQty: decimal.NewFromInt(9)}))
	assert.True(t, l.Complete(Usage{ConsumedQty: decimal.NewFromInt(10)}))

	// Exhaustion by procurement commitment alone.
	assert.True(t, l.Complete(Usage{Ordered: decimal.NewFromInt(10)}))
	assert.False(t, l.Complete(Usage{Ordered: decimal.NewFromInt(9), ConsumedQty: decimal.NewFromInt(9)}))
}

func TestLine_Complete_WithinTolerance(t *testing.T) {
	l := Line{Quantity: decimal.NewFromInt(10)}

	// 9.99995 consumed of 10 leaves less than the comparison tolerance.
	assert.True(t, l.Complete(Usage{ConsumedQty: decimal.RequireFromString("9.99995")}))
	assert.False(t, l.Complete(Usage{ConsumedQty: decimal.RequireFromString("9.999")}))
}

func TestCostType_Valid(t *testing.T) {
	for _, c := range []CostType{CostMaterial, CostLabor, CostSubcontract, CostService, CostOverhead} {
		assert.True(t, c.Valid(), "%s", c)
	}
	assert.False(t, CostType("equipment").Valid())
	assert.False(t, CostType("").Valid())
}
