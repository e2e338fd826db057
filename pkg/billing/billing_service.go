package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sitemate/sitemate/internal/utils"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/consumption"
)

type Service interface {
	Create(ctx context.Context, b Bill) (Bill, error)
	Get(ctx context.Context, id int) (Bill, error)
	List(ctx context.Context) ([]Bill, error)
	// Post runs the bill's budget-tracked lines through the consumption gate
	// and marks the bill posted. The whole bill passes or the whole bill
	// fails; a rejected bill stays draft.
	Post(ctx context.Context, id int) (Bill, error)
}

type ServiceImpl struct {
	repo    Repo
	rates   RateRepo
	boqRepo boq.Repo
	gate    consumption.Service
	clock   utils.Clock
	// Company currency; BOQ budgets are denominated in it, so every billed
	// amount is converted before it hits the gate.
	currency string
}

func NewService(repo Repo, rates RateRepo, boqRepo boq.Repo, gate consumption.Service,
	clock utils.Clock, currency string) *ServiceImpl {
	return &ServiceImpl{
		repo:     repo,
		rates:    rates,
		boqRepo:  boqRepo,
		gate:     gate,
		clock:    clock,
		currency: currency,
	}
}

func (s *ServiceImpl) Create(ctx context.Context, b Bill) (Bill, error) {
	if len(b.Lines) == 0 {
		return Bill{}, boq.Validationf("a vendor bill requires at least one line")
	}
	for _, l := range b.Lines {
		if !l.Quantity.IsPositive() {
			return Bill{}, boq.Validationf("bill line quantity must be positive, got %s", l.Quantity)
		}
		if l.Subtotal.IsNegative() {
			return Bill{}, boq.Validationf("bill line subtotal must not be negative, got %s", l.Subtotal)
		}
	}
	if b.Number == "" {
		b.Number = fmt.Sprintf("BILL-%s", strings.ToUpper(uuid.NewString()[:8]))
	}
	if b.BillType == "" {
		b.BillType = TypeInvoice
	}
	if b.Currency == "" {
		b.Currency = s.currency
	}
	if b.BillDate.IsZero() {
		b.BillDate = utils.Today(s.clock)
	}
	b.State = BillDraft

	id, err := s.repo.Store(ctx, b)
	if err != nil {
		return Bill{}, err
	}
	log.Infof("created vendor bill %q (id %d)", b.Number, id)
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (Bill, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) List(ctx context.Context) ([]Bill, error) {
	return s.repo.List(ctx)
}

func (s *ServiceImpl) Post(ctx context.Context, id int) (Bill, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	if b.State != BillDraft {
		return Bill{}, boq.Validationf("vendor bill %q cannot be posted from state %q", b.Number, b.State)
	}

	draws, err := s.draws(ctx, b)
	if err != nil {
		return Bill{}, err
	}

	// Claim the bill first so two posts of the same bill cannot both reach
	// the gate.
	claimed, err := s.repo.UpdateState(ctx, id, BillDraft, BillPosted)
	if err != nil {
		return Bill{}, err
	}
	if !claimed {
		return Bill{}, boq.Validationf("vendor bill %q was posted concurrently", b.Number)
	}

	if err := s.gate.CheckAndReserve(ctx, draws); err != nil {
		if _, revertErr := s.repo.UpdateState(ctx, id, BillPosted, BillDraft); revertErr != nil {
			log.Errorf("could not revert bill %d to draft after rejected posting: %v", id, revertErr)
		}
		return Bill{}, err
	}

	log.Infof("posted vendor bill %q with %d budget draw(s)", b.Number, len(draws))
	return s.repo.Get(ctx, id)
}

// draws translates the bill's budget-tracked lines into consumption draws.
// Material lines are excluded: material budgets are consumed when stock is
// issued to the site, counting the invoice as well would double-book them.
func (s *ServiceImpl) draws(ctx context.Context, b Bill) ([]consumption.Draw, error) {
	sign := b.BillType.Sign()
	rate := decimal.NewFromInt(1)
	if b.Currency != s.currency {
		var err error
		if rate, err = s.rates.RateAt(ctx, b.Currency, b.BillDate); err != nil {
			return nil, err
		}
	}

	var draws []consumption.Draw
	for _, l := range b.Lines {
		boqLineId := l.BoqLineId
		if boqLineId == 0 && l.PurchaseLineId != 0 {
			var err error
			if boqLineId, err = s.repo.BoqLineForPurchaseLine(ctx, l.PurchaseLineId); err != nil {
				return nil, err
			}
		}
		if boqLineId == 0 {
			// Not budget-tracked.
			continue
		}

		line, err := s.boqRepo.GetLine(ctx, boqLineId)
		if err != nil {
			return nil, err
		}
		if line.CostType == boq.CostMaterial {
			log.Debugf("bill line %d skips the gate: material line %d is consumed on stock issue", l.Id, boqLineId)
			continue
		}

		draws = append(draws, consumption.Draw{
			BoqLineId:   boqLineId,
			Quantity:    l.Quantity.Mul(sign),
			Amount:      l.Subtotal.Mul(rate).Mul(sign),
			SourceModel: consumption.SourceBillLine,
			SourceId:    l.Id,
			Date:        b.BillDate,
		})
	}
	return draws, nil
}
