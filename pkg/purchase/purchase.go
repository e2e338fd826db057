package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the procurement document lifecycle.
type OrderState string

const (
	OrderDraft     OrderState = "draft"
	OrderConfirmed OrderState = "confirmed"
	OrderCancelled OrderState = "cancelled"
)

// OrderType distinguishes free procurement from orders drawing on a BOQ.
// BOQ orders are validated against budget ceilings on confirmation.
type OrderType string

const (
	TypeNormal OrderType = "normal"
	TypeBOQ    OrderType = "boq"
)

type Order struct {
	Id        int
	Number    string
	OrderType OrderType
	ProjectId int
	BoqId     int
	State     OrderState
	Lines     []OrderLine
	CreatedAt time.Time
}

type OrderLine struct {
	Id          int
	OrderId     int
	BoqLineId   int
	ProductId   int
	Description string
	Quantity    decimal.Decimal
	Uom         string
}

// BoqLineIds returns the distinct BOQ lines this order draws on.
func (o Order) BoqLineIds() []int {
	seen := make(map[int]struct{})
	var ids []int
	for _, l := range o.Lines {
		if l.BoqLineId == 0 {
			continue
		}
		if _, ok := seen[l.BoqLineId]; ok {
			continue
		}
		seen[l.BoqLineId] = struct{}{}
		ids = append(ids, l.BoqLineId)
	}
	return ids
}
