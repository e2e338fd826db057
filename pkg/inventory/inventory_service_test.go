package inventory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitemate/sitemate/internal/event_bus"
	"github.com/sitemate/sitemate/internal/test_utils"
	"github.com/sitemate/sitemate/internal/utils"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/consumption"
	"github.com/sitemate/sitemate/pkg/project"
	"github.com/sitemate/sitemate/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inventoryFixture struct {
	db         *sql.DB
	service    *ServiceImpl
	ledger     *consumption.RepoImpl
	ctx        context.Context
	cementId   int
	steelId    int
	cementLine int
}

// setupInventoryTest seeds an approved BOQ with a cement line authorizing 10
// bags at 9 each, linked to the cement product.
func setupInventoryTest(t *testing.T) inventoryFixture {
	t.Helper()
	db := test_utils.SetupTestDB(t)
	ctx := context.Background()

	userRepo := user.NewUserRepo(db)
	userId, err := userRepo.CreateUser(ctx, user.User{Uid: "u-1", Username: "storekeeper", DisplayName: "Storekeeper"})
	require.NoError(t, err)

	var cementId, steelId int
	err = db.QueryRow(`INSERT INTO product (name, uom, standard_price) VALUES ('Cement OPC 53', 'bag', 9) RETURNING id`).Scan(&cementId)
	require.NoError(t, err)
	err = db.QueryRow(`INSERT INTO product (name, uom, standard_price) VALUES ('Rebar 12mm', 'kg', 1) RETURNING id`).Scan(&steelId)
	require.NoError(t, err)

	projectRepo := project.NewRepo(db)
	projectId, err := projectRepo.Store(ctx, project.Project{Name: "Tower A", AnalyticAccountId: 11, CompanyId: 1})
	require.NoError(t, err)

	boqRepo := boq.NewRepo(db)
	boqId, err := boqRepo.Store(ctx, boq.BOQ{
		Name: "BOQ-TOWER-A", ProjectId: projectId, AnalyticAccountId: 11, CompanyId: 1,
		Currency: "USD", Version: 1, State: boq.StateDraft,
	})
	require.NoError(t, err)

	cementLine, err := boqRepo.AddLine(ctx, boq.Line{
		BoqId: boqId, ProductId: cementId, Description: "Cement OPC 53",
		DisplayType: boq.DisplayLine, CostType: boq.CostMaterial,
		Quantity: decimal.NewFromInt(10), Uom: "bag", Rate: decimal.NewFromInt(9),
		BudgetAmount: decimal.NewFromInt(90), ExpenseAccountId: 4410,
	})
	require.NoError(t, err)

	for _, step := range []struct{ from, to boq.State }{
		{boq.StateDraft, boq.StateSubmitted},
		{boq.StateSubmitted, boq.StateApproved},
	} {
		ok, err := boqRepo.UpdateState(ctx, boqId, step.from, step.to, userId, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.True(t, ok)
	}

	bus := event_bus.NewEventBus()
	ledger := consumption.NewRepo(db)
	gate := consumption.NewGatekeeper(db, boqRepo, ledger, bus)
	clock := &utils.MockClock{FixedNow: time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)}
	service := NewService(NewRepo(db), boqRepo, gate, clock)

	return inventoryFixture{
		db:         db,
		service:    service,
		ledger:     ledger,
		ctx:        user.WithUser(ctx, user.User{Id: userId, Uid: "u-1"}),
		cementId:   cementId,
		steelId:    steelId,
		cementLine: cementLine,
	}
}

func (f inventoryFixture) issue(qty int64) StockMove {
	return StockMove{
		Reference:       "WH/OUT/0001",
		ProductId:       f.cementId,
		BoqLineId:       f.cementLine,
		Quantity:        decimal.NewFromInt(qty),
		UnitCost:        decimal.NewFromInt(9),
		SourceKind:      LocationInternal,
		DestinationKind: LocationCustomer,
	}
}

func TestService_Complete_IssueConsumesBudget(t *testing.T) {
	f := setupInventoryTest(t)
	created, err := f.service.Create(f.ctx, f.issue(4))
	require.NoError(t, err)

	completion, err := f.service.Complete(f.ctx, created.Id)

	require.NoError(t, err)
	assert.Equal(t, MoveDone, completion.Move.State)
	assert.False(t, completion.Move.DoneAt.IsZero())
	assert.True(t, completion.ConsumedBudget)
	assert.Equal(t, 4410, completion.ExpenseAccountId, "the line's expense account overrides the valuation destination")

	qty, amount, err := f.ledger.NetForLine(f.ctx, f.cementLine)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4).Equal(qty), "consumed quantity = %s", qty)
	assert.True(t, decimal.NewFromInt(36).Equal(amount), "consumed amount = %s", amount)

	entries, err := f.ledger.ListForLine(f.ctx, f.cementLine)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, consumption.SourceStockMove, entries[0].SourceModel)
	assert.Equal(t, created.Id, entries[0].SourceId)
}

func TestService_Complete_RejectsIssueOverRemaining(t *testing.T) {
	f := setupInventoryTest(t)

	// Consume half the line up front.
	first, err := f.service.Create(f.ctx, f.issue(5))
	require.NoError(t, err)
	_, err = f.service.Complete(f.ctx, first.Id)
	require.NoError(t, err)

	// 5 remain; issuing 5 more works, then even 1 must fail.
	second, err := f.service.Create(f.ctx, f.issue(5))
	require.NoError(t, err)
	_, err = f.service.Complete(f.ctx, second.Id)
	require.NoError(t, err)

	third, err := f.service.Create(f.ctx, f.issue(1))
	require.NoError(t, err)
	_, err = f.service.Complete(f.ctx, third.Id)

	var exceeded consumption.BudgetExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, f.cementLine, exceeded.BoqLineId)

	// The rejected move stays draft with no completion stamp.
	m, err := f.service.Get(f.ctx, third.Id)
	require.NoError(t, err)
	assert.Equal(t, MoveDraft, m.State)
	assert.True(t, m.DoneAt.IsZero())
}

func TestService_Complete_ConcurrentCompletionsDrawOnce(t *testing.T) {
	f := setupInventoryTest(t)
	created, err := f.service.Create(f.ctx, f.issue(5))
	require.NoError(t, err)

	// Two workers pick up the same draft move. Only one may claim the done
	// transition, and only the winner's draw may reach the ledger.
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.service.Complete(f.ctx, created.Id)
			results <- err
		}()
	}
	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			failures++
			var validation boq.ValidationError
			assert.True(t, errors.As(err, &validation), "loser must fail the claim, got %v", err)
		}
	}
	assert.Equal(t, 1, failures, "exactly one completion must win")

	qty, amount, err := f.ledger.NetForLine(f.ctx, f.cementLine)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(qty), "one physical move must consume once, net = %s", qty)
	assert.True(t, decimal.NewFromInt(45).Equal(amount))

	entries, err := f.ledger.ListForLine(f.ctx, f.cementLine)
	require.NoError(t, err)
	require.Len(t, entries, 1, "the losing completion must not leave an orphan entry")

	m, err := f.service.Get(f.ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, MoveDone, m.State)
}

func TestService_Complete_RejectsProductMismatch(t *testing.T) {
	f := setupInventoryTest(t)
	m := f.issue(1)
	m.ProductId = f.steelId
	created, err := f.service.Create(f.ctx, m)
	require.NoError(t, err)

	_, err = f.service.Complete(f.ctx, created.Id)

	var validation boq.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestService_Complete_InternalTransferSkipsBudget(t *testing.T) {
	f := setupInventoryTest(t)
	m := f.issue(500) // far over the line's budget
	m.DestinationKind = LocationInternal
	created, err := f.service.Create(f.ctx, m)
	require.NoError(t, err)

	completion, err := f.service.Complete(f.ctx, created.Id)

	require.NoError(t, err)
	assert.Equal(t, MoveDone, completion.Move.State)
	assert.False(t, completion.ConsumedBudget)

	qty, _, err := f.ledger.NetForLine(f.ctx, f.cementLine)
	require.NoError(t, err)
	assert.True(t, qty.IsZero(), "internal transfers must not touch the ledger")
}

func TestService_Complete_ReturnFreesBudget(t *testing.T) {
	f := setupInventoryTest(t)
	issue, err := f.service.Create(f.ctx, f.issue(10))
	require.NoError(t, err)
	_, err = f.service.Complete(f.ctx, issue.Id)
	require.NoError(t, err)

	ret := f.issue(3)
	ret.SourceKind = LocationCustomer
	ret.DestinationKind = LocationInternal
	created, err := f.service.Create(f.ctx, ret)
	require.NoError(t, err)
	_, err = f.service.Complete(f.ctx, created.Id)
	require.NoError(t, err)

	qty, _, err := f.ledger.NetForLine(f.ctx, f.cementLine)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(7).Equal(qty), "net quantity after return = %s", qty)

	// The returned 3 bags can be issued again.
	again, err := f.service.Create(f.ctx, f.issue(3))
	require.NoError(t, err)
	_, err = f.service.Complete(f.ctx, again.Id)
	require.NoError(t, err)
}

func TestService_Complete_UnlinkedMoveSkipsBudget(t *testing.T) {
	f := setupInventoryTest(t)
	m := f.issue(2)
	m.BoqLineId = 0
	created, err := f.service.Create(f.ctx, m)
	require.NoError(t, err)

	completion, err := f.service.Complete(f.ctx, created.Id)

	require.NoError(t, err)
	assert.False(t, completion.ConsumedBudget)
	qty, _, err := f.ledger.NetForLine(f.ctx, f.cementLine)
	require.NoError(t, err)
	assert.True(t, qty.IsZero())
}

func TestService_Complete_RejectsDoubleCompletion(t *testing.T) {
	f := setupInventoryTest(t)
	created, err := f.service.Create(f.ctx, f.issue(1))
	require.NoError(t, err)
	_, err = f.service.Complete(f.ctx, created.Id)
	require.NoError(t, err)

	_, err = f.service.Complete(f.ctx, created.Id)

	var validation boq.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestService_Cancel(t *testing.T) {
	f := setupInventoryTest(t)
	created, err := f.service.Create(f.ctx, f.issue(1))
	require.NoError(t, err)

	cancelled, err := f.service.Cancel(f.ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, MoveCancelled, cancelled.State)

	_, err = f.service.Complete(f.ctx, created.Id)
	var validation boq.ValidationError
	require.ErrorAs(t, err, &validation)
}
