package consumption

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sitemate/sitemate/internal/event_bus"
	"github.com/sitemate/sitemate/internal/metrics"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/user"
	log "github.com/sirupsen/logrus"
)

// LineLoader loads a budget line together with its parent document state.
// Implemented by the boq repository.
type LineLoader interface {
	GetLineWithState(ctx context.Context, lineId int) (boq.Line, boq.State, error)
}

// Service is the consumption gatekeeper: the single path through which any
// transaction draws from a BOQ line's budget.
type Service interface {
	// CheckAndReserve validates the draws against the remaining budget and,
	// on success, appends the ledger entries. Check and write are one
	// atomic step with respect to any concurrent call on the same lines.
	CheckAndReserve(ctx context.Context, draws []Draw) error
	EntriesForLine(ctx context.Context, lineId int) ([]Entry, error)
}

type Gatekeeper struct {
	db    *sql.DB
	lines LineLoader
	repo  Repo
	locks *LineLocks
	bus   *event_bus.EventBus
}

func NewGatekeeper(db *sql.DB, lines LineLoader, repo Repo, bus *event_bus.EventBus) *Gatekeeper {
	return &Gatekeeper{
		db:    db,
		lines: lines,
		repo:  repo,
		locks: NewLineLocks(),
		bus:   bus,
	}
}

func (g *Gatekeeper) EntriesForLine(ctx context.Context, lineId int) ([]Entry, error) {
	return g.repo.ListForLine(ctx, lineId)
}

func (g *Gatekeeper) CheckAndReserve(ctx context.Context, draws []Draw) error {
	if len(draws) == 0 {
		return nil
	}
	userId, err := user.CurrentId(ctx)
	if err != nil {
		return fmt.Errorf("consumption requires an acting user: %w", err)
	}

	// Draws against the same line are aggregated before the limit check so a
	// batch cannot slip an over-limit request through in slices.
	byLine := make(map[int][]Draw)
	for _, d := range draws {
		byLine[d.BoqLineId] = append(byLine[d.BoqLineId], d)
	}
	lineIds := make([]int, 0, len(byLine))
	for id := range byLine {
		lineIds = append(lineIds, id)
	}
	sort.Ints(lineIds)

	// Acquire every per-line lock up front, immediate-fail on contention.
	release, contended, ok := g.locks.TryLockAll(lineIds)
	if !ok {
		metrics.DrawsRejected.WithLabelValues(metrics.ReasonLockContention).Inc()
		return ConcurrentModificationError{BoqLineId: contended}
	}
	defer release()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, lineId := range lineIds {
		if err := g.checkLine(ctx, tx, lineId, byLine[lineId]); err != nil {
			return err
		}
	}

	for _, lineId := range lineIds {
		for _, d := range byLine[lineId] {
			entry := Entry{
				BoqLineId:   d.BoqLineId,
				SourceModel: d.SourceModel,
				SourceId:    d.SourceId,
				Quantity:    d.Quantity,
				Amount:      d.Amount,
				Date:        d.Date,
				UserId:      userId,
			}
			if _, err := g.repo.Add(ctx, tx, entry); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit consumption: %w", err)
	}
	metrics.DrawsAccepted.Inc()

	if err := g.bus.Publish(event_bus.NewEvent(ctx, event_bus.ConsumptionRecordedType,
		event_bus.ConsumptionRecorded{BoqLineIds: lineIds})); err != nil {
		// The ledger write is committed; a failed recomputation only leaves
		// a stale completion flag behind.
		log.Warnf("consumption recorded but recomputation failed: %v", err)
	}
	return nil
}

// checkLine recomputes the line's remaining budget from the ledger as of now
// and validates the aggregated draw against it.
func (g *Gatekeeper) checkLine(ctx context.Context, tx *sql.Tx, lineId int, draws []Draw) error {
	line, state, err := g.lines.GetLineWithState(ctx, lineId)
	if err != nil {
		return err
	}
	if !state.CanConsume() {
		metrics.DrawsRejected.WithLabelValues(metrics.ReasonInvalidState).Inc()
		return boq.InvalidStateError{BoqId: line.BoqId, State: state, Operation: "consume budget"}
	}
	if !line.IsBudgetLine() {
		return boq.Validationf("line %d is a %s row and carries no budget", lineId, line.DisplayType)
	}

	totalQty := decimal.Zero
	totalAmount := decimal.Zero
	for _, d := range draws {
		totalQty = totalQty.Add(d.Quantity)
		totalAmount = totalAmount.Add(d.Amount)
	}

	// Negative draws are reversals: they only free budget and always pass.
	if line.AllowOverConsumption || (!totalQty.IsPositive() && !totalAmount.IsPositive()) {
		return nil
	}

	consumedQty, consumedAmount, err := g.repo.NetForLineIn(ctx, tx, lineId)
	if err != nil {
		return err
	}

	if totalQty.IsPositive() {
		remaining := line.RemainingQuantity(consumedQty)
		if totalQty.GreaterThan(remaining.Add(boq.Epsilon)) {
			metrics.DrawsRejected.WithLabelValues(metrics.ReasonBudgetExceeded).Inc()
			return BudgetExceededError{
				BoqLineId: lineId,
				Dimension: "quantity",
				Requested: totalQty,
				Limit:     remaining,
				Shortfall: totalQty.Sub(remaining),
			}
		}
	}
	if totalAmount.IsPositive() {
		remaining := line.RemainingAmount(consumedAmount)
		if totalAmount.GreaterThan(remaining.Add(boq.Epsilon)) {
			metrics.DrawsRejected.WithLabelValues(metrics.ReasonBudgetExceeded).Inc()
			return BudgetExceededError{
				BoqLineId: lineId,
				Dimension: "amount",
				Requested: totalAmount,
				Limit:     remaining,
				Shortfall: totalAmount.Sub(remaining),
			}
		}
	}
	return nil
}
