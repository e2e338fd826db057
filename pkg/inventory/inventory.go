package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// LocationKind classifies the endpoints of a stock move. Budget consumption
// is decided by kind, not by concrete warehouse topology.
type LocationKind string

const (
	LocationInternal   LocationKind = "internal"
	LocationSupplier   LocationKind = "supplier"
	LocationCustomer   LocationKind = "customer"
	LocationProduction LocationKind = "production"
)

// Consuming reports whether moving stock INTO this location spends material
// budget: issues to the site (customer) and to production do, internal
// transfers and receipts do not.
func (k LocationKind) Consuming() bool {
	return k == LocationCustomer || k == LocationProduction
}

type MoveState string

const (
	MoveDraft     MoveState = "draft"
	MoveDone      MoveState = "done"
	MoveCancelled MoveState = "cancelled"
)

type StockMove struct {
	Id              int
	Reference       string
	ProductId       int
	BoqLineId       int
	Quantity        decimal.Decimal
	UnitCost        decimal.Decimal
	SourceKind      LocationKind
	DestinationKind LocationKind
	State           MoveState
	DoneAt          time.Time
}

// Value is the move's budget valuation.
func (m StockMove) Value() decimal.Decimal {
	return m.Quantity.Mul(m.UnitCost)
}

// budgetSign is +1 for an issue, -1 for a return of issued stock, and zero
// for moves with no budget effect.
func (m StockMove) budgetSign() int {
	if m.DestinationKind.Consuming() {
		return 1
	}
	if m.SourceKind.Consuming() && m.DestinationKind == LocationInternal {
		return -1
	}
	return 0
}

// Completion is the result of completing a move. For budget-consuming moves
// the BOQ line's expense account overrides the default valuation destination.
type Completion struct {
	Move             StockMove
	ConsumedBudget   bool
	ExpenseAccountId int
}
