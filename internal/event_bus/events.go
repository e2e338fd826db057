package event_bus

const (
	// ConsumptionRecordedType fires after ledger entries are committed for a
	// BOQ line. Subscribers recompute the line's remaining budget and
	// completion flag.
	ConsumptionRecordedType EventType = "consumption.recorded"

	// OrderedQuantityChangedType fires when a purchase order line referencing
	// a BOQ line is confirmed or cancelled.
	OrderedQuantityChangedType EventType = "purchase.ordered_changed"
)

type ConsumptionRecorded struct {
	BoqLineIds []int
}

type OrderedQuantityChanged struct {
	BoqLineIds []int
}
