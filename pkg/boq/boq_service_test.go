package boq

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitemate/sitemate/internal/event_bus"
	"github.com/sitemate/sitemate/internal/test_utils"
	"github.com/sitemate/sitemate/internal/utils"
	"github.com/sitemate/sitemate/pkg/project"
	"github.com/sitemate/sitemate/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubUsage satisfies ConsumptionReader and OrderedReader with values set
// directly by tests. Missing lines read as zero.
type stubUsage struct {
	qty     map[int]decimal.Decimal
	amount  map[int]decimal.Decimal
	ordered map[int]decimal.Decimal
}

func newStubUsage() *stubUsage {
	return &stubUsage{
		qty:     make(map[int]decimal.Decimal),
		amount:  make(map[int]decimal.Decimal),
		ordered: make(map[int]decimal.Decimal),
	}
}

func (s *stubUsage) NetForLine(_ context.Context, lineId int) (decimal.Decimal, decimal.Decimal, error) {
	return s.qty[lineId], s.amount[lineId], nil
}

func (s *stubUsage) OrderedQuantity(_ context.Context, lineId int) (decimal.Decimal, error) {
	return s.ordered[lineId], nil
}

type boqServiceFixture struct {
	db        *sql.DB
	service   *ServiceImpl
	repo      *RepoImpl
	usage     *stubUsage
	bus       *event_bus.EventBus
	ctx       context.Context
	projectId int
	userId    int
}

func setupBOQServiceTest(t *testing.T) boqServiceFixture {
	t.Helper()
	db := test_utils.SetupTestDB(t)
	ctx := context.Background()

	userRepo := user.NewUserRepo(db)
	userId, err := userRepo.CreateUser(ctx, user.User{Uid: "u-1", Username: "estimator", DisplayName: "Estimator"})
	require.NoError(t, err)

	projectRepo := project.NewRepo(db)
	projectId, err := projectRepo.Store(ctx, project.Project{Name: "Tower A", AnalyticAccountId: 11, CompanyId: 1})
	require.NoError(t, err)

	repo := NewRepo(db)
	usage := newStubUsage()
	bus := event_bus.NewEventBus()
	clock := &utils.MockClock{FixedNow: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	service := NewService(repo, project.NewService(projectRepo), usage, usage, clock, bus, 1, "USD")

	return boqServiceFixture{
		db:        db,
		service:   service,
		repo:      repo,
		usage:     usage,
		bus:       bus,
		ctx:       user.WithUser(ctx, user.User{Id: userId, Uid: "u-1"}),
		projectId: projectId,
		userId:    userId,
	}
}

func (f boqServiceFixture) newBOQ(t *testing.T) BOQ {
	t.Helper()
	b, err := f.service.Create(f.ctx, NewBOQ{ProjectId: f.projectId})
	require.NoError(t, err)
	return b
}

func (f boqServiceFixture) addBudgetLine(t *testing.T, boqId int, description string, qty, rate int64) Line {
	t.Helper()
	l, err := f.service.AddLine(f.ctx, Line{
		BoqId:       boqId,
		Description: description,
		CostType:    CostMaterial,
		Quantity:    decimal.NewFromInt(qty),
		Uom:         "unit",
		Rate:        decimal.NewFromInt(rate),
	})
	require.NoError(t, err)
	return l
}

func (f boqServiceFixture) approve(t *testing.T, boqId int) BOQ {
	t.Helper()
	_, err := f.service.Submit(f.ctx, boqId)
	require.NoError(t, err)
	b, err := f.service.Approve(f.ctx, boqId)
	require.NoError(t, err)
	return b
}

func (f boqServiceFixture) addProduct(t *testing.T, name, uom string, price string) int {
	t.Helper()
	var id int
	err := f.db.QueryRowContext(context.Background(),
		"INSERT INTO product (name, uom, standard_price) VALUES ($1, $2, $3) RETURNING id", name, uom, price).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestService_Create(t *testing.T) {
	f := setupBOQServiceTest(t)

	b, err := f.service.Create(f.ctx, NewBOQ{ProjectId: f.projectId})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.Name, "BOQ-"), "generated name = %q", b.Name)
	assert.Equal(t, 1, b.Version)
	assert.Equal(t, StateDraft, b.State)
	assert.Equal(t, "USD", b.Currency)
	assert.Equal(t, 1, b.CompanyId)
	assert.Equal(t, 11, b.AnalyticAccountId, "analytic account resolved from the project")

	// The next document for the same project gets the next version.
	second, err := f.service.Create(f.ctx, NewBOQ{Name: "BOQ-TOWER-A-R2", ProjectId: f.projectId})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "BOQ-TOWER-A-R2", second.Name)
}

func TestService_Create_RequiresProject(t *testing.T) {
	f := setupBOQServiceTest(t)

	_, err := f.service.Create(f.ctx, NewBOQ{})

	var validation ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestService_Create_RequiresAnalyticAccount(t *testing.T) {
	f := setupBOQServiceTest(t)
	bare, err := project.NewRepo(f.db).Store(f.ctx, project.Project{Name: "Yard Works", CompanyId: 1})
	require.NoError(t, err)

	_, err = f.service.Create(f.ctx, NewBOQ{ProjectId: bare})
	var validation ValidationError
	require.ErrorAs(t, err, &validation)

	// An explicit account on the input fills the gap.
	b, err := f.service.Create(f.ctx, NewBOQ{ProjectId: bare, AnalyticAccountId: 42})
	require.NoError(t, err)
	assert.Equal(t, 42, b.AnalyticAccountId)
}

func TestService_AddLine_ProductDefaults(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	productId := f.addProduct(t, "Portland Cement", "bag", "9.5")

	l, err := f.service.AddLine(f.ctx, Line{
		BoqId:     b.Id,
		ProductId: productId,
		CostType:  CostMaterial,
		Quantity:  decimal.NewFromInt(100),
	})

	require.NoError(t, err)
	assert.Equal(t, "Portland Cement", l.Description)
	assert.Equal(t, "bag", l.Uom)
	assert.True(t, decimal.RequireFromString("9.5").Equal(l.Rate))
	assert.True(t, decimal.NewFromInt(950).Equal(l.BudgetAmount))
}

func TestService_AddLine_Validation(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)

	cases := map[string]Line{
		"missing description": {BoqId: b.Id, CostType: CostMaterial,
			Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(1)},
		"unknown cost type": {BoqId: b.Id, Description: "Crane hire", CostType: "equipment",
			Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(1)},
		"zero quantity": {BoqId: b.Id, Description: "Cement", CostType: CostMaterial,
			Rate: decimal.NewFromInt(1)},
		"negative rate": {BoqId: b.Id, Description: "Cement", CostType: CostMaterial,
			Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(-1)},
		"negative additional quantity": {BoqId: b.Id, Description: "Cement", CostType: CostMaterial,
			Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(1), AdditionalQuantity: decimal.NewFromInt(-1)},
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.AddLine(f.ctx, line)
			var validation ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}
}

func TestService_AddLine_NoteCarriesNoBudget(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)

	l, err := f.service.AddLine(f.ctx, Line{
		BoqId:       b.Id,
		Description: "Rates include delivery",
		DisplayType: DisplayNote,
		Quantity:    decimal.NewFromInt(99),
		Rate:        decimal.NewFromInt(99),
	})

	require.NoError(t, err)
	assert.True(t, l.Quantity.IsZero())
	assert.True(t, l.Rate.IsZero())
	assert.True(t, l.BudgetAmount.IsZero())

	_, err = f.service.AddLine(f.ctx, Line{BoqId: b.Id, DisplayType: DisplayNote})
	var validation ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestService_AddLine_RejectedOnApprovedBOQ(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	f.addBudgetLine(t, b.Id, "Cement", 100, 9)
	f.approve(t, b.Id)

	_, err := f.service.AddLine(f.ctx, Line{
		BoqId:       b.Id,
		Description: "Late addition",
		CostType:    CostMaterial,
		Quantity:    decimal.NewFromInt(1),
		Rate:        decimal.NewFromInt(1),
	})

	var locked LockedDocumentError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, StateApproved, locked.State)
}

func TestService_SubmitAndApprove(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	f.addBudgetLine(t, b.Id, "Cement", 100, 9)

	submitted, err := f.service.Submit(f.ctx, b.Id)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, submitted.State)

	approved, err := f.service.Approve(f.ctx, b.Id)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, approved.State)
	assert.Equal(t, f.userId, approved.ApprovedById)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), approved.ApprovalDate)
}

func TestService_Submit_RequiresBudgetLines(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)

	_, err := f.service.Submit(f.ctx, b.Id)

	var validation ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestService_Approve_RequiresSubmission(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	f.addBudgetLine(t, b.Id, "Cement", 100, 9)

	_, err := f.service.Approve(f.ctx, b.Id)

	var invalidState InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, StateDraft, invalidState.State)
}

func TestService_Approve_RequiresUser(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	f.addBudgetLine(t, b.Id, "Cement", 100, 9)
	_, err := f.service.Submit(f.ctx, b.Id)
	require.NoError(t, err)

	_, err = f.service.Approve(context.Background(), b.Id)

	require.ErrorIs(t, err, user.ErrNoUser)
}

func TestService_Approve_RejectsSecondLiveBOQ(t *testing.T) {
	f := setupBOQServiceTest(t)
	first := f.newBOQ(t)
	f.addBudgetLine(t, first.Id, "Cement", 100, 9)
	f.approve(t, first.Id)

	second := f.newBOQ(t)
	f.addBudgetLine(t, second.Id, "Cement", 120, 9)
	_, err := f.service.Submit(f.ctx, second.Id)
	require.NoError(t, err)

	_, err = f.service.Approve(f.ctx, second.Id)

	var validation ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, err.Error(), "live BOQ")
}

func TestService_Approve_ConcurrentApprovalsYieldOneLiveBOQ(t *testing.T) {
	f := setupBOQServiceTest(t)
	first := f.newBOQ(t)
	f.addBudgetLine(t, first.Id, "Cement", 100, 9)
	second := f.newBOQ(t)
	f.addBudgetLine(t, second.Id, "Cement", 120, 9)
	for _, id := range []int{first.Id, second.Id} {
		_, err := f.service.Submit(f.ctx, id)
		require.NoError(t, err)
	}

	// Both documents are submitted; racing approvals may both pass the
	// live-BOQ check, so the unique index on live documents per project has
	// to reject the second write.
	results := make(chan error, 2)
	for _, id := range []int{first.Id, second.Id} {
		id := id
		go func() {
			_, err := f.service.Approve(f.ctx, id)
			results <- err
		}()
	}
	var failures int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one approval must win")

	var live int
	err := f.db.QueryRow(`SELECT COUNT(*) FROM boq WHERE project_id = $1 AND state IN ('approved', 'locked')`, f.projectId).Scan(&live)
	require.NoError(t, err)
	assert.Equal(t, 1, live)
}

func TestService_LockAndClose(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	f.addBudgetLine(t, b.Id, "Cement", 100, 9)
	f.approve(t, b.Id)

	// Closing an approved BOQ skips the locked stage and must fail.
	_, err := f.service.Close(f.ctx, b.Id)
	var invalidState InvalidStateError
	require.ErrorAs(t, err, &invalidState)

	locked, err := f.service.Lock(f.ctx, b.Id)
	require.NoError(t, err)
	assert.Equal(t, StateLocked, locked.State)

	closed, err := f.service.Close(f.ctx, b.Id)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, closed.State)
}

func TestService_LineStatus(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	l := f.addBudgetLine(t, b.Id, "Cement", 10, 9)
	f.usage.qty[l.Id] = decimal.NewFromInt(4)
	f.usage.amount[l.Id] = decimal.NewFromInt(36)
	f.usage.ordered[l.Id] = decimal.NewFromInt(2)

	status, err := f.service.LineStatus(f.ctx, l.Id)

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(6).Equal(status.RemainingQuantity), "remaining = %s", status.RemainingQuantity)
	assert.True(t, decimal.NewFromInt(54).Equal(status.RemainingAmount))
	assert.True(t, decimal.NewFromInt(2).Equal(status.Usage.Ordered))
	assert.False(t, status.IsComplete)
}

func TestService_PurchasableLines(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	open := f.addBudgetLine(t, b.Id, "Cement", 100, 9)
	done := f.addBudgetLine(t, b.Id, "Rebar", 50, 30)
	_, err := f.service.AddLine(f.ctx, Line{BoqId: b.Id, Description: "Delivery included", DisplayType: DisplayNote})
	require.NoError(t, err)
	require.NoError(t, f.repo.SetLineComplete(f.ctx, done.Id, true))

	lines, err := f.service.PurchasableLines(f.ctx, b.Id)

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, open.Id, lines[0].Id)
}

func TestService_RecomputesCompletionOnLedgerEvents(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	l := f.addBudgetLine(t, b.Id, "Cement", 10, 9)

	f.usage.qty[l.Id] = decimal.NewFromInt(10)
	err := f.bus.Publish(event_bus.NewEvent(f.ctx, event_bus.ConsumptionRecordedType,
		event_bus.ConsumptionRecorded{BoqLineIds: []int{l.Id}}))
	require.NoError(t, err)

	got, err := f.repo.GetLine(f.ctx, l.Id)
	require.NoError(t, err)
	assert.True(t, got.IsComplete)

	// A reversal that frees headroom reopens the line.
	f.usage.qty[l.Id] = decimal.NewFromInt(6)
	err = f.bus.Publish(event_bus.NewEvent(f.ctx, event_bus.ConsumptionRecordedType,
		event_bus.ConsumptionRecorded{BoqLineIds: []int{l.Id}}))
	require.NoError(t, err)

	got, err = f.repo.GetLine(f.ctx, l.Id)
	require.NoError(t, err)
	assert.False(t, got.IsComplete)
}

func TestService_RecomputesCompletionOnOrderedEvents(t *testing.T) {
	f := setupBOQServiceTest(t)
	b := f.newBOQ(t)
	l := f.addBudgetLine(t, b.Id, "Cement", 10, 9)

	f.usage.ordered[l.Id] = decimal.NewFromInt(10)
	err := f.bus.Publish(event_bus.NewEvent(f.ctx, event_bus.OrderedQuantityChangedType,
		event_bus.OrderedQuantityChanged{BoqLineIds: []int{l.Id}}))
	require.NoError(t, err)

	got, err := f.repo.GetLine(f.ctx, l.Id)
	require.NoError(t, err)
	assert.True(t, got.IsComplete, "a fully committed line is closed for further procurement")
}
