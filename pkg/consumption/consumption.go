package consumption

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceModel tags a ledger entry with the kind of transaction that produced
// it. Entries are summed uniformly regardless of source.
type SourceModel string

const (
	SourceBillLine  SourceModel = "vendor_bill_line"
	SourceStockMove SourceModel = "stock_move"
	SourceManual    SourceModel = "manual"
)

// Entry is one immutable row of the consumption ledger. A reversal is a new
// entry with negated sign, never a mutation of an existing one.
type Entry struct {
	Id          int
	BoqLineId   int
	SourceModel SourceModel
	SourceId    int
	Quantity    decimal.Decimal
	Amount      decimal.Decimal
	Date        time.Time
	UserId      int
}

// Draw is a requested budget consumption: positive quantities/amounts spend
// budget, negative ones free it.
type Draw struct {
	BoqLineId   int
	Quantity    decimal.Decimal
	Amount      decimal.Decimal
	SourceModel SourceModel
	SourceId    int
	Date        time.Time
}
