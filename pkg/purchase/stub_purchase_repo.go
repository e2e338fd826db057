package purchase

import (
	"context"

	"github.com/shopspring/decimal"
)

// StubRepo is an in-memory Repo implementation for tests.
type StubRepo struct {
	Orders map[int]Order
	nextId int
}

func NewStubRepo() *StubRepo {
	return &StubRepo{Orders: make(map[int]Order)}
}

func (s *StubRepo) Store(_ context.Context, o Order) (int, error) {
	s.nextId++
	o.Id = s.nextId
	for i := range o.Lines {
		o.Lines[i].OrderId = o.Id
		o.Lines[i].Id = s.nextId*100 + i
	}
	s.Orders[o.Id] = o
	return o.Id, nil
}

func (s *StubRepo) Get(_ context.Context, id int) (Order, error) {
	o, ok := s.Orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (s *StubRepo) List(_ context.Context) ([]Order, error) {
	var orders []Order
	for _, o := range s.Orders {
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *StubRepo) UpdateState(_ context.Context, id int, from, to OrderState) (bool, error) {
	o, ok := s.Orders[id]
	if !ok || o.State != from {
		return false, nil
	}
	o.State = to
	s.Orders[id] = o
	return true, nil
}

func (s *StubRepo) OrderedQuantity(_ context.Context, boqLineId int) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, o := range s.Orders {
		if o.State != OrderConfirmed {
			continue
		}
		for _, l := range o.Lines {
			if l.BoqLineId == boqLineId {
				total = total.Add(l.Quantity)
			}
		}
	}
	return total, nil
}
