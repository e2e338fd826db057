package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillType determines the sign a bill's lines apply to the consumption
// ledger: invoices spend budget, refunds return it.
type BillType string

const (
	TypeInvoice BillType = "invoice"
	TypeRefund  BillType = "refund"
)

func (t BillType) Sign() decimal.Decimal {
	if t == TypeRefund {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

type BillState string

const (
	BillDraft  BillState = "draft"
	BillPosted BillState = "posted"
)

type Bill struct {
	Id       int
	Number   string
	BillType BillType
	Currency string
	BillDate time.Time
	State    BillState
	Lines    []BillLine
}

// BillLine is one billed position. A line drawing on a BOQ references the
// budget line either directly or through the purchase order line it bills.
type BillLine struct {
	Id             int
	BillId         int
	PurchaseLineId int
	BoqLineId      int
	ProductId      int
	Description    string
	Quantity       decimal.Decimal
	Subtotal       decimal.Decimal
}
