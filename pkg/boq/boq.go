package boq

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the BOQ document lifecycle. Transitions are one-directional;
// consumption is only legal in StateApproved and StateLocked.
type State string

const (
	StateDraft     State = "draft"
	StateSubmitted State = "submitted"
	StateApproved  State = "approved"
	StateLocked    State = "locked"
	StateClosed    State = "closed"
)

// CanConsume reports whether budget draws are legal in this state.
func (s State) CanConsume() bool {
	return s == StateApproved || s == StateLocked
}

// Editable reports whether budget-relevant line data may still change.
func (s State) Editable() bool {
	return s == StateDraft || s == StateSubmitted
}

// next returns the only legal forward transition target, or "" for closed.
func (s State) next() State {
	switch s {
	case StateDraft:
		return StateSubmitted
	case StateSubmitted:
		return StateApproved
	case StateApproved:
		return StateLocked
	case StateLocked:
		return StateClosed
	}
	return ""
}

// CanTransitionTo reports whether to is the legal next state after s.
func (s State) CanTransitionTo(to State) bool {
	return s.next() == to && to != ""
}

type CostType string

const (
	CostMaterial    CostType = "material"
	CostLabor       CostType = "labor"
	CostSubcontract CostType = "subcontract"
	CostService     CostType = "service"
	CostOverhead    CostType = "overhead"
)

func (c CostType) Valid() bool {
	switch c {
	case CostMaterial, CostLabor, CostSubcontract, CostService, CostOverhead:
		return true
	}
	return false
}

// DisplayType discriminates budget lines from section headers and free-text
// notes. Headers and notes never participate in budget math.
type DisplayType string

const (
	DisplayLine    DisplayType = "line"
	DisplaySection DisplayType = "section"
	DisplayNote    DisplayType = "note"
)

// Epsilon is the tolerance applied to all quantity/amount comparisons.
var Epsilon = decimal.NewFromFloat(0.0001)

type BOQ struct {
	Id                int
	Name              string
	ProjectId         int
	SaleOrderId       int
	AnalyticAccountId int
	CompanyId         int
	Currency          string
	Version           int
	State             State
	ApprovalDate      time.Time
	ApprovedById      int
	TotalBudget       decimal.Decimal
	Sections          []Section
	Lines             []Line
}

type Section struct {
	Id       int
	BoqId    int
	Name     string
	Sequence int
}

// Line is the unit of budget authority: a quantity/rate ceiling that every
// downstream draw is checked against.
type Line struct {
	Id                   int
	BoqId                int
	SectionId            int
	ProductId            int
	Sequence             int
	Description          string
	DisplayType          DisplayType
	CostType             CostType
	Quantity             decimal.Decimal
	Uom                  string
	Rate                 decimal.Decimal
	BudgetAmount         decimal.Decimal
	AdditionalQuantity   decimal.Decimal
	AllowOverConsumption bool
	ExpenseAccountId     int
	IsComplete           bool
}

// IsBudgetLine reports whether the line participates in budget math.
func (l Line) IsBudgetLine() bool {
	return l.DisplayType == DisplayLine
}

// AuthorizedQuantity is the quantity ceiling: quantity plus the approved
// additional allowance.
func (l Line) AuthorizedQuantity() decimal.Decimal {
	return l.Quantity.Add(l.AdditionalQuantity)
}

// AuthorizedAmount is the monetary ceiling at the estimated rate.
func (l Line) AuthorizedAmount() decimal.Decimal {
	return l.AuthorizedQuantity().Mul(l.Rate)
}

// RemainingQuantity is the authorized ceiling minus net consumed quantity.
// Net consumption comes from the ledger only; ordered quantity is a separate
// view and must not be folded in here.
func (l Line) RemainingQuantity(netConsumed decimal.Decimal) decimal.Decimal {
	return l.AuthorizedQuantity().Sub(netConsumed)
}

// RemainingAmount is the monetary ceiling minus net consumed amount.
func (l Line) RemainingAmount(netAmount decimal.Decimal) decimal.Decimal {
	return l.AuthorizedAmount().Sub(netAmount)
}

// Usage aggregates the two independent derived views over a line: committed
// (ordered) quantity from procurement and net consumption from the ledger.
type Usage struct {
	Ordered        decimal.Decimal
	ConsumedQty    decimal.Decimal
	ConsumedAmount decimal.Decimal
}

// Complete is the exhaustion test: the line is complete when either the
// consumed or the committed quantity has reached the authorized ceiling.
// Complete lines are excluded from purchasable-product selection.
func (l Line) Complete(u Usage) bool {
	authorized := l.AuthorizedQuantity()
	if authorized.Sub(u.ConsumedQty).LessThanOrEqual(Epsilon) {
		return true
	}
	return authorized.Sub(u.Ordered).LessThanOrEqual(Epsilon)
}

// Product is the catalog item a line may link to for auto-completion of
// description, unit of measure and rate.
type Product struct {
	Id            int
	Name          string
	Uom           string
	StandardPrice decimal.Decimal
}
