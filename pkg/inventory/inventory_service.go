package inventory

import (
	"context"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sitemate/sitemate/internal/utils"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/consumption"
)

type Service interface {
	Create(ctx context.Context, m StockMove) (StockMove, error)
	Get(ctx context.Context, id int) (StockMove, error)
	List(ctx context.Context) ([]StockMove, error)
	// Complete finishes a draft move. Issues to consuming locations draw
	// material budget through the gate; returns put it back.
	Complete(ctx context.Context, id int) (Completion, error)
	Cancel(ctx context.Context, id int) (StockMove, error)
}

type ServiceImpl struct {
	repo    Repo
	boqRepo boq.Repo
	gate    consumption.Service
	clock   utils.Clock
}

func NewService(repo Repo, boqRepo boq.Repo, gate consumption.Service, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, boqRepo: boqRepo, gate: gate, clock: clock}
}

func (s *ServiceImpl) Create(ctx context.Context, m StockMove) (StockMove, error) {
	if m.ProductId == 0 {
		return StockMove{}, boq.Validationf("a stock move requires a product")
	}
	if !m.Quantity.IsPositive() {
		return StockMove{}, boq.Validationf("stock move quantity must be positive, got %s", m.Quantity)
	}
	if m.UnitCost.IsNegative() {
		return StockMove{}, boq.Validationf("unit cost must not be negative, got %s", m.UnitCost)
	}
	if m.SourceKind == "" {
		m.SourceKind = LocationInternal
	}
	if m.DestinationKind == "" {
		m.DestinationKind = LocationInternal
	}
	m.State = MoveDraft

	id, err := s.repo.Store(ctx, m)
	if err != nil {
		return StockMove{}, err
	}
	m.Id = id
	return m, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (StockMove, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) List(ctx context.Context) ([]StockMove, error) {
	return s.repo.List(ctx)
}

func (s *ServiceImpl) Complete(ctx context.Context, id int) (Completion, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return Completion{}, err
	}
	if m.State != MoveDraft {
		return Completion{}, boq.Validationf("stock move %d cannot be completed from state %q", id, m.State)
	}

	sign := m.budgetSign()
	result := Completion{Move: m}

	var line boq.Line
	var draws []consumption.Draw
	if sign != 0 && m.BoqLineId != 0 && m.Quantity.IsPositive() {
		line, err = s.boqRepo.GetLine(ctx, m.BoqLineId)
		if err != nil {
			return Completion{}, err
		}
		if line.ProductId != 0 && line.ProductId != m.ProductId {
			return Completion{}, boq.Validationf("stock move product %d does not match BOQ line %d product %d",
				m.ProductId, line.Id, line.ProductId)
		}

		factor := decimal.NewFromInt(int64(sign))
		draws = []consumption.Draw{{
			BoqLineId:   m.BoqLineId,
			Quantity:    m.Quantity.Mul(factor),
			Amount:      m.Value().Mul(factor),
			SourceModel: consumption.SourceStockMove,
			SourceId:    m.Id,
			Date:        utils.Today(s.clock),
		}}
	}

	// Claim the move first so two completions of the same move cannot both
	// reach the gate; a rejected draw reverts the claim.
	done, err := s.repo.MarkDone(ctx, id, s.clock.Now().UTC())
	if err != nil {
		return Completion{}, err
	}
	if !done {
		return Completion{}, boq.Validationf("stock move %d was completed concurrently", id)
	}

	if len(draws) > 0 {
		if err := s.gate.CheckAndReserve(ctx, draws); err != nil {
			if _, reopenErr := s.repo.Reopen(ctx, id); reopenErr != nil {
				log.Errorf("could not revert stock move %d to draft after rejected draw: %v", id, reopenErr)
			}
			return Completion{}, err
		}
		result.ConsumedBudget = sign > 0
		result.ExpenseAccountId = line.ExpenseAccountId
	}
	log.Infof("completed stock move %d (%s -> %s)", id, m.SourceKind, m.DestinationKind)

	result.Move, err = s.repo.Get(ctx, id)
	if err != nil {
		return Completion{}, err
	}
	return result, nil
}

func (s *ServiceImpl) Cancel(ctx context.Context, id int) (StockMove, error) {
	cancelled, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return StockMove{}, err
	}
	if !cancelled {
		m, err := s.repo.Get(ctx, id)
		if err != nil {
			return StockMove{}, err
		}
		return StockMove{}, boq.Validationf("stock move %d cannot be cancelled from state %q", id, m.State)
	}
	return s.repo.Get(ctx, id)
}
