package purchase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sitemate/sitemate/internal/event_bus"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/consumption"
)

type Service interface {
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id int) (Order, error)
	List(ctx context.Context) ([]Order, error)
	// Confirm validates a BOQ order against its budget ceilings and turns the
	// draft into a procurement commitment.
	Confirm(ctx context.Context, id int) (Order, error)
	Cancel(ctx context.Context, id int) (Order, error)
}

type ServiceImpl struct {
	repo    Repo
	boqRepo boq.Repo
	bus     *event_bus.EventBus
	// Serializes confirm-time ceiling checks per BOQ line. The commitment
	// ceiling only races with other confirmations, so the registry is local
	// to this service rather than shared with the consumption gate.
	locks *consumption.LineLocks
}

func NewService(repo Repo, boqRepo boq.Repo, bus *event_bus.EventBus) *ServiceImpl {
	return &ServiceImpl{repo: repo, boqRepo: boqRepo, bus: bus, locks: consumption.NewLineLocks()}
}

func (s *ServiceImpl) Create(ctx context.Context, o Order) (Order, error) {
	if len(o.Lines) == 0 {
		return Order{}, boq.Validationf("a purchase order requires at least one line")
	}
	for _, l := range o.Lines {
		if !l.Quantity.IsPositive() {
			return Order{}, boq.Validationf("order line quantity must be positive, got %s", l.Quantity)
		}
	}
	if o.Number == "" {
		o.Number = fmt.Sprintf("PO-%s", strings.ToUpper(uuid.NewString()[:8]))
	}
	if o.OrderType == "" {
		if o.BoqId != 0 {
			o.OrderType = TypeBOQ
		} else {
			o.OrderType = TypeNormal
		}
	}
	if o.OrderType == TypeBOQ && o.BoqId == 0 {
		return Order{}, boq.Validationf("a BOQ order requires a BOQ reference")
	}
	o.State = OrderDraft

	id, err := s.repo.Store(ctx, o)
	if err != nil {
		return Order{}, err
	}
	log.Infof("created purchase order %q (id %d)", o.Number, id)
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) List(ctx context.Context) ([]Order, error) {
	return s.repo.List(ctx)
}

func (s *ServiceImpl) Confirm(ctx context.Context, id int) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.State != OrderDraft {
		return Order{}, boq.Validationf("purchase order %q cannot be confirmed from state %q", o.Number, o.State)
	}

	if o.OrderType == TypeBOQ {
		// Ceiling check and state flip must be one step per BOQ line, or two
		// concurrent confirmations both read the commitment before either
		// counts. Held until the confirmation is written.
		release, contended, ok := s.locks.TryLockAll(o.BoqLineIds())
		if !ok {
			return Order{}, consumption.ConcurrentModificationError{BoqLineId: contended}
		}
		defer release()

		if err := s.validateAgainstBudget(ctx, o); err != nil {
			return Order{}, err
		}
	}

	updated, err := s.repo.UpdateState(ctx, id, OrderDraft, OrderConfirmed)
	if err != nil {
		return Order{}, err
	}
	if !updated {
		return Order{}, boq.Validationf("purchase order %q was modified concurrently", o.Number)
	}
	log.Infof("confirmed purchase order %q", o.Number)

	if lineIds := o.BoqLineIds(); len(lineIds) > 0 {
		if err := s.bus.Publish(event_bus.NewEvent(ctx, event_bus.OrderedQuantityChangedType,
			event_bus.OrderedQuantityChanged{BoqLineIds: lineIds})); err != nil {
			log.Warnf("order confirmed but recomputation failed: %v", err)
		}
	}
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) Cancel(ctx context.Context, id int) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.State == OrderCancelled {
		return o, nil
	}

	updated, err := s.repo.UpdateState(ctx, id, o.State, OrderCancelled)
	if err != nil {
		return Order{}, err
	}
	if !updated {
		return Order{}, boq.Validationf("purchase order %q was modified concurrently", o.Number)
	}
	log.Infof("cancelled purchase order %q", o.Number)

	// Cancelling a confirmed order releases its commitment.
	if o.State == OrderConfirmed {
		if lineIds := o.BoqLineIds(); len(lineIds) > 0 {
			if err := s.bus.Publish(event_bus.NewEvent(ctx, event_bus.OrderedQuantityChangedType,
				event_bus.OrderedQuantityChanged{BoqLineIds: lineIds})); err != nil {
				log.Warnf("order cancelled but recomputation failed: %v", err)
			}
		}
	}
	return s.repo.Get(ctx, id)
}

// validateAgainstBudget enforces the BOQ-order rules: the BOQ must be live,
// the order must belong to the BOQ's project, every line must draw on an open
// budget line of that BOQ, and the total confirmed commitment per budget line
// must stay under the authorized quantity.
func (s *ServiceImpl) validateAgainstBudget(ctx context.Context, o Order) error {
	b, err := s.boqRepo.Get(ctx, o.BoqId)
	if err != nil {
		return err
	}
	if !b.State.CanConsume() {
		return boq.InvalidStateError{BoqId: b.Id, State: b.State, Operation: "order against"}
	}
	if o.ProjectId != 0 && o.ProjectId != b.ProjectId {
		return boq.Validationf("purchase order project %d does not match BOQ project %d", o.ProjectId, b.ProjectId)
	}

	totals := make(map[int]OrderLine)
	for _, l := range o.Lines {
		if l.BoqLineId == 0 {
			return boq.Validationf("line %q of a BOQ order must reference a BOQ line", l.Description)
		}
		agg := totals[l.BoqLineId]
		agg.BoqLineId = l.BoqLineId
		agg.Quantity = agg.Quantity.Add(l.Quantity)
		totals[l.BoqLineId] = agg
	}

	for boqLineId, agg := range totals {
		line, err := s.boqRepo.GetLine(ctx, boqLineId)
		if err != nil {
			return err
		}
		if line.BoqId != b.Id {
			return boq.Validationf("BOQ line %d does not belong to BOQ %q", boqLineId, b.Name)
		}
		if !line.IsBudgetLine() {
			return boq.Validationf("BOQ line %d is a %s row and cannot be ordered against", boqLineId, line.DisplayType)
		}
		if line.IsComplete {
			return boq.Validationf("BOQ line %d is already fully committed", boqLineId)
		}
		if line.AllowOverConsumption {
			continue
		}

		ordered, err := s.repo.OrderedQuantity(ctx, boqLineId)
		if err != nil {
			return err
		}
		available := line.AuthorizedQuantity().Sub(ordered)
		if agg.Quantity.GreaterThan(available.Add(boq.Epsilon)) {
			return consumption.BudgetExceededError{
				BoqLineId: boqLineId,
				Dimension: "quantity",
				Requested: agg.Quantity,
				Limit:     available,
				Shortfall: agg.Quantity.Sub(available),
			}
		}
	}
	return nil
}
