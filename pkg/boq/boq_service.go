package boq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sitemate/sitemate/internal/event_bus"
	"github.com/sitemate/sitemate/internal/utils"
	"github.com/sitemate/sitemate/pkg/project"
	"github.com/sitemate/sitemate/pkg/user"
	log "github.com/sirupsen/logrus"
)

// ConsumptionReader exposes the ledger's net-consumption view. Implemented by
// the consumption repository; declared here so the boq package does not
// depend on it.
type ConsumptionReader interface {
	NetForLine(ctx context.Context, lineId int) (qty decimal.Decimal, amount decimal.Decimal, err error)
}

// OrderedReader exposes the procurement commitment view: the sum of
// non-cancelled ordered quantities referencing a BOQ line.
type OrderedReader interface {
	OrderedQuantity(ctx context.Context, lineId int) (decimal.Decimal, error)
}

// NewBOQ is the creation input. AnalyticAccountId may be left zero, in which
// case it is resolved from the project (the original behaviour when creating
// a BOQ from a project or a confirmed sale order).
type NewBOQ struct {
	Name              string
	ProjectId         int
	SaleOrderId       int
	AnalyticAccountId int
}

// LineStatus is the read model collaborators query per line.
type LineStatus struct {
	Line              Line
	Usage             Usage
	RemainingQuantity decimal.Decimal
	RemainingAmount   decimal.Decimal
	IsComplete        bool
}

type Service interface {
	Create(ctx context.Context, input NewBOQ) (BOQ, error)
	Get(ctx context.Context, id int) (BOQ, error)
	List(ctx context.Context) ([]BOQ, error)

	AddSection(ctx context.Context, s Section) (Section, error)
	AddLine(ctx context.Context, l Line) (Line, error)
	UpdateLine(ctx context.Context, l Line) (Line, error)
	DeleteLine(ctx context.Context, lineId int) error

	Submit(ctx context.Context, id int) (BOQ, error)
	Approve(ctx context.Context, id int) (BOQ, error)
	Lock(ctx context.Context, id int) (BOQ, error)
	Close(ctx context.Context, id int) (BOQ, error)

	LineStatus(ctx context.Context, lineId int) (LineStatus, error)
	PurchasableLines(ctx context.Context, boqId int) ([]Line, error)
	RecomputeLineCompletion(ctx context.Context, lineId int) error
}

type ServiceImpl struct {
	repo     Repo
	projects project.Service
	ledger   ConsumptionReader
	ordered  OrderedReader
	clock    utils.Clock
	// Operating company context, passed in explicitly instead of read from
	// any ambient state. New BOQs are denominated in this currency.
	companyId int
	currency  string
}

func NewService(repo Repo, projects project.Service, ledger ConsumptionReader, ordered OrderedReader,
	clock utils.Clock, bus *event_bus.EventBus, companyId int, currency string) *ServiceImpl {
	s := &ServiceImpl{
		repo:      repo,
		projects:  projects,
		ledger:    ledger,
		ordered:   ordered,
		clock:     clock,
		companyId: companyId,
		currency:  currency,
	}
	// Remaining budget and the completion flag are derived values. They are
	// recomputed here whenever a ledger write or a procurement state change
	// touches a line, instead of relying on implicit dependency tracking.
	bus.Subscribe(event_bus.ConsumptionRecordedType, func(e event_bus.Event) error {
		data, ok := e.Data.(event_bus.ConsumptionRecorded)
		if !ok {
			return nil
		}
		return s.recomputeAll(e.Context(), data.BoqLineIds)
	})
	bus.Subscribe(event_bus.OrderedQuantityChangedType, func(e event_bus.Event) error {
		data, ok := e.Data.(event_bus.OrderedQuantityChanged)
		if !ok {
			return nil
		}
		return s.recomputeAll(e.Context(), data.BoqLineIds)
	})
	return s
}

func (s *ServiceImpl) Create(ctx context.Context, input NewBOQ) (BOQ, error) {
	if input.ProjectId == 0 {
		return BOQ{}, Validationf("a BOQ requires a project")
	}
	proj, err := s.projects.Get(ctx, input.ProjectId)
	if err != nil {
		return BOQ{}, fmt.Errorf("failed to resolve project %d: %w", input.ProjectId, err)
	}
	analyticAccountId := input.AnalyticAccountId
	if analyticAccountId == 0 {
		analyticAccountId = proj.AnalyticAccountId
	}
	if analyticAccountId == 0 {
		return BOQ{}, Validationf("project %q has no analytic account and none was given", proj.Name)
	}

	version, err := s.repo.NextVersion(ctx, input.ProjectId)
	if err != nil {
		return BOQ{}, err
	}

	name := input.Name
	if name == "" {
		name = fmt.Sprintf("BOQ-%s", strings.ToUpper(uuid.NewString()[:8]))
	}

	b := BOQ{
		Name:              name,
		ProjectId:         input.ProjectId,
		SaleOrderId:       input.SaleOrderId,
		AnalyticAccountId: analyticAccountId,
		CompanyId:         s.companyId,
		Currency:          s.currency,
		Version:           version,
		State:             StateDraft,
	}
	id, err := s.repo.Store(ctx, b)
	if err != nil {
		return BOQ{}, err
	}
	b.Id = id
	log.Infof("created BOQ %q (id %d, version %d) for project %d", b.Name, b.Id, b.Version, b.ProjectId)
	return b, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (BOQ, error) {
	return s.repo.GetFull(ctx, id)
}

func (s *ServiceImpl) List(ctx context.Context) ([]BOQ, error) {
	return s.repo.List(ctx)
}

func (s *ServiceImpl) AddSection(ctx context.Context, sec Section) (Section, error) {
	if sec.Name == "" {
		return Section{}, Validationf("section name is required")
	}
	if err := s.requireEditable(ctx, sec.BoqId); err != nil {
		return Section{}, err
	}
	if sec.Sequence == 0 {
		sec.Sequence = 10
	}
	id, err := s.repo.AddSection(ctx, sec)
	if err != nil {
		return Section{}, err
	}
	sec.Id = id
	return sec, nil
}

func (s *ServiceImpl) AddLine(ctx context.Context, l Line) (Line, error) {
	l, err := s.prepareLine(ctx, l)
	if err != nil {
		return Line{}, err
	}
	id, err := s.repo.AddLine(ctx, l)
	if err != nil {
		return Line{}, err
	}
	l.Id = id
	return l, nil
}

func (s *ServiceImpl) UpdateLine(ctx context.Context, l Line) (Line, error) {
	l, err := s.prepareLine(ctx, l)
	if err != nil {
		return Line{}, err
	}
	if _, err := s.repo.UpdateLine(ctx, l); err != nil {
		return Line{}, err
	}
	return l, nil
}

func (s *ServiceImpl) DeleteLine(ctx context.Context, lineId int) error {
	deleted, err := s.repo.DeleteLine(ctx, lineId)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrLineNotFound
	}
	return nil
}

// prepareLine validates a line and fills derived and product-defaulted
// fields before it is written.
func (s *ServiceImpl) prepareLine(ctx context.Context, l Line) (Line, error) {
	if l.DisplayType == "" {
		l.DisplayType = DisplayLine
	}
	if l.Sequence == 0 {
		l.Sequence = 10
	}

	if !l.IsBudgetLine() {
		// Headers and notes carry no budget data.
		l.Quantity = decimal.Zero
		l.Rate = decimal.Zero
		l.BudgetAmount = decimal.Zero
		l.AdditionalQuantity = decimal.Zero
		if l.Description == "" {
			return Line{}, Validationf("a %s line requires a description", l.DisplayType)
		}
		return l, nil
	}

	if l.ProductId != 0 {
		p, err := s.repo.GetProduct(ctx, l.ProductId)
		if err != nil {
			return Line{}, err
		}
		if l.Description == "" {
			l.Description = p.Name
		}
		if l.Uom == "" {
			l.Uom = p.Uom
		}
		if l.Rate.IsZero() {
			l.Rate = p.StandardPrice
		}
	}

	if l.Description == "" {
		return Line{}, Validationf("a budget line requires a description")
	}
	if !l.CostType.Valid() {
		return Line{}, Validationf("unknown cost type %q", l.CostType)
	}
	if !l.Quantity.IsPositive() {
		return Line{}, Validationf("quantity must be positive, got %s", l.Quantity)
	}
	if l.Rate.IsNegative() {
		return Line{}, Validationf("rate must not be negative, got %s", l.Rate)
	}
	if l.AdditionalQuantity.IsNegative() {
		return Line{}, Validationf("additional quantity must not be negative, got %s", l.AdditionalQuantity)
	}
	if l.Uom == "" {
		l.Uom = "unit"
	}
	l.BudgetAmount = l.Quantity.Mul(l.Rate)
	return l, nil
}

func (s *ServiceImpl) requireEditable(ctx context.Context, boqId int) error {
	b, err := s.repo.Get(ctx, boqId)
	if err != nil {
		return err
	}
	if !b.State.Editable() {
		return LockedDocumentError{BoqId: boqId, State: b.State}
	}
	return nil
}

func (s *ServiceImpl) Submit(ctx context.Context, id int) (BOQ, error) {
	return s.transition(ctx, id, StateDraft, StateSubmitted, "submit")
}

func (s *ServiceImpl) Approve(ctx context.Context, id int) (BOQ, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return BOQ{}, err
	}
	count, err := s.repo.CountBudgetLines(ctx, id)
	if err != nil {
		return BOQ{}, err
	}
	if count == 0 {
		return BOQ{}, Validationf("cannot approve BOQ %q without budget lines", b.Name)
	}
	live, err := s.repo.HasLiveForProject(ctx, b.ProjectId, id)
	if err != nil {
		return BOQ{}, err
	}
	if live {
		return BOQ{}, Validationf("project %d already has a live BOQ; revise it instead", b.ProjectId)
	}

	userId, err := user.CurrentId(ctx)
	if err != nil {
		return BOQ{}, fmt.Errorf("approval requires an acting user: %w", err)
	}
	approvalDate := utils.Today(s.clock)
	updated, err := s.repo.UpdateState(ctx, id, StateSubmitted, StateApproved, userId, approvalDate)
	if err != nil {
		return BOQ{}, err
	}
	if !updated {
		// The state moved under us, or was never submitted. The DB-level
		// unique index on live BOQs per project backstops concurrent
		// approvals that pass the check above simultaneously.
		return BOQ{}, InvalidStateError{BoqId: id, State: b.State, Operation: "approve"}
	}
	log.Infof("BOQ %d approved by user %d", id, userId)
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) Lock(ctx context.Context, id int) (BOQ, error) {
	return s.transition(ctx, id, StateApproved, StateLocked, "lock")
}

func (s *ServiceImpl) Close(ctx context.Context, id int) (BOQ, error) {
	return s.transition(ctx, id, StateLocked, StateClosed, "close")
}

func (s *ServiceImpl) transition(ctx context.Context, id int, from, to State, op string) (BOQ, error) {
	if from == StateDraft {
		count, err := s.repo.CountBudgetLines(ctx, id)
		if err != nil {
			return BOQ{}, err
		}
		if count == 0 {
			return BOQ{}, Validationf("cannot %s a BOQ without budget lines", op)
		}
	}
	updated, err := s.repo.UpdateState(ctx, id, from, to, 0, time.Time{})
	if err != nil {
		return BOQ{}, err
	}
	if !updated {
		b, err := s.repo.Get(ctx, id)
		if err != nil {
			return BOQ{}, err
		}
		return BOQ{}, InvalidStateError{BoqId: id, State: b.State, Operation: op}
	}
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) LineStatus(ctx context.Context, lineId int) (LineStatus, error) {
	l, err := s.repo.GetLine(ctx, lineId)
	if err != nil {
		return LineStatus{}, err
	}
	u, err := s.usage(ctx, lineId)
	if err != nil {
		return LineStatus{}, err
	}
	return LineStatus{
		Line:              l,
		Usage:             u,
		RemainingQuantity: l.RemainingQuantity(u.ConsumedQty),
		RemainingAmount:   l.RemainingAmount(u.ConsumedAmount),
		IsComplete:        l.Complete(u),
	}, nil
}

// PurchasableLines returns the budget lines of a BOQ that are still open for
// procurement: complete lines and display-only rows are excluded.
func (s *ServiceImpl) PurchasableLines(ctx context.Context, boqId int) ([]Line, error) {
	lines, err := s.repo.ListLines(ctx, boqId)
	if err != nil {
		return nil, err
	}
	open := make([]Line, 0, len(lines))
	for _, l := range lines {
		if !l.IsBudgetLine() || l.IsComplete {
			continue
		}
		open = append(open, l)
	}
	return open, nil
}

func (s *ServiceImpl) RecomputeLineCompletion(ctx context.Context, lineId int) error {
	l, err := s.repo.GetLine(ctx, lineId)
	if err != nil {
		return err
	}
	u, err := s.usage(ctx, lineId)
	if err != nil {
		return err
	}
	complete := l.Complete(u)
	if complete == l.IsComplete {
		return nil
	}
	log.Debugf("line %d completion changed to %v (consumed %s, ordered %s of %s)",
		lineId, complete, u.ConsumedQty, u.Ordered, l.AuthorizedQuantity())
	return s.repo.SetLineComplete(ctx, lineId, complete)
}

func (s *ServiceImpl) usage(ctx context.Context, lineId int) (Usage, error) {
	qty, amount, err := s.ledger.NetForLine(ctx, lineId)
	if err != nil {
		return Usage{}, err
	}
	ordered, err := s.ordered.OrderedQuantity(ctx, lineId)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Ordered: ordered, ConsumedQty: qty, ConsumedAmount: amount}, nil
}

func (s *ServiceImpl) recomputeAll(ctx context.Context, lineIds []int) error {
	for _, id := range lineIds {
		if err := s.RecomputeLineCompletion(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
