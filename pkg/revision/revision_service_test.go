package revision

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitemate/sitemate/internal/test_utils"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/consumption"
	"github.com/sitemate/sitemate/pkg/project"
	"github.com/sitemate/sitemate/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revisionFixture struct {
	db        *sql.DB
	service   *ServiceImpl
	boqRepo   *boq.RepoImpl
	ctx       context.Context
	projectId int
	boqId     int
	sectionId int
	lineIds   []int
}

// setupRevisionTest seeds an approved BOQ with one section, two budget lines
// and a note row.
func setupRevisionTest(t *testing.T) revisionFixture {
	t.Helper()
	db := test_utils.SetupTestDB(t)
	ctx := context.Background()

	userRepo := user.NewUserRepo(db)
	userId, err := userRepo.CreateUser(ctx, user.User{Uid: "u-1", Username: "qs.lead", DisplayName: "QS Lead"})
	require.NoError(t, err)

	projectRepo := project.NewRepo(db)
	projectId, err := projectRepo.Store(ctx, project.Project{Name: "Tower A", AnalyticAccountId: 11, CompanyId: 1})
	require.NoError(t, err)

	boqRepo := boq.NewRepo(db)
	boqId, err := boqRepo.Store(ctx, boq.BOQ{
		Name:              "BOQ-TOWER-A",
		ProjectId:         projectId,
		AnalyticAccountId: 11,
		CompanyId:         1,
		Currency:          "USD",
		Version:           1,
		State:             boq.StateDraft,
	})
	require.NoError(t, err)

	sectionId, err := boqRepo.AddSection(ctx, boq.Section{BoqId: boqId, Name: "Substructure", Sequence: 10})
	require.NoError(t, err)

	var lineIds []int
	for _, l := range []boq.Line{
		{BoqId: boqId, SectionId: sectionId, Description: "Cement", DisplayType: boq.DisplayLine, CostType: boq.CostMaterial,
			Quantity: decimal.NewFromInt(100), Uom: "bag", Rate: decimal.NewFromInt(9), BudgetAmount: decimal.NewFromInt(900)},
		{BoqId: boqId, SectionId: sectionId, Description: "Excavation", DisplayType: boq.DisplayLine, CostType: boq.CostSubcontract,
			Quantity: decimal.NewFromInt(40), Uom: "m3", Rate: decimal.NewFromInt(25), BudgetAmount: decimal.NewFromInt(1000)},
		{BoqId: boqId, Description: "Rates include delivery", DisplayType: boq.DisplayNote},
	} {
		id, err := boqRepo.AddLine(ctx, l)
		require.NoError(t, err)
		lineIds = append(lineIds, id)
	}

	for _, step := range []struct{ from, to boq.State }{
		{boq.StateDraft, boq.StateSubmitted},
		{boq.StateSubmitted, boq.StateApproved},
	} {
		ok, err := boqRepo.UpdateState(ctx, boqId, step.from, step.to, userId, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.True(t, ok)
	}

	return revisionFixture{
		db:        db,
		service:   NewService(NewRepo(db), boqRepo),
		boqRepo:   boqRepo,
		ctx:       user.WithUser(ctx, user.User{Id: userId, Uid: "u-1"}),
		projectId: projectId,
		boqId:     boqId,
		sectionId: sectionId,
		lineIds:   lineIds,
	}
}

func TestService_CreateRevision(t *testing.T) {
	f := setupRevisionTest(t)

	revised, err := f.service.CreateRevision(f.ctx, f.boqId, "steel rates changed")

	require.NoError(t, err)
	assert.Equal(t, boq.StateDraft, revised.State)
	assert.Equal(t, 2, revised.Version)
	assert.Equal(t, f.projectId, revised.ProjectId)
	assert.Equal(t, "BOQ-TOWER-A", revised.Name)
	assert.True(t, revised.ApprovalDate.IsZero(), "approval stamps must not be copied")
	assert.Zero(t, revised.ApprovedById)

	require.Len(t, revised.Sections, 1)
	require.Len(t, revised.Lines, 3)
	assert.NotEqual(t, f.sectionId, revised.Sections[0].Id)
	for _, l := range revised.Lines {
		if l.DisplayType == boq.DisplayLine {
			assert.Equal(t, revised.Sections[0].Id, l.SectionId, "cloned lines must point at the cloned section")
		}
		assert.False(t, l.IsComplete)
	}
	assert.True(t, decimal.NewFromInt(1900).Equal(revised.TotalBudget), "total = %s", revised.TotalBudget)

	// The original stays approved and untouched.
	original, err := f.boqRepo.GetFull(f.ctx, f.boqId)
	require.NoError(t, err)
	assert.Equal(t, boq.StateApproved, original.State)
	require.Len(t, original.Lines, 3)

	history, err := f.service.History(f.ctx, f.boqId)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "steel rates changed", history[0].Reason)
	assert.Equal(t, revised.Id, history[0].NewBoqId)
}

func TestService_CreateRevision_DoesNotCopyConsumption(t *testing.T) {
	f := setupRevisionTest(t)

	ledger := consumption.NewRepo(f.db)
	userId, err := user.CurrentId(f.ctx)
	require.NoError(t, err)
	_, err = ledger.Add(f.ctx, nil, consumption.Entry{
		BoqLineId:   f.lineIds[0],
		SourceModel: consumption.SourceManual,
		SourceId:    1,
		Quantity:    decimal.NewFromInt(60),
		Amount:      decimal.NewFromInt(540),
		Date:        time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		UserId:      userId,
	})
	require.NoError(t, err)

	revised, err := f.service.CreateRevision(f.ctx, f.boqId, "scope change")
	require.NoError(t, err)

	// Every cloned line starts with a clean ledger.
	for _, l := range revised.Lines {
		qty, amount, err := ledger.NetForLine(f.ctx, l.Id)
		require.NoError(t, err)
		assert.True(t, qty.IsZero(), "line %d net quantity = %s", l.Id, qty)
		assert.True(t, amount.IsZero())
	}
}

func TestService_CreateRevision_RequiresApprovedOrLocked(t *testing.T) {
	f := setupRevisionTest(t)

	projectRepo := project.NewRepo(f.db)
	otherProject, err := projectRepo.Store(context.Background(), project.Project{Name: "Tower B", AnalyticAccountId: 12, CompanyId: 1})
	require.NoError(t, err)
	draftId, err := f.boqRepo.Store(context.Background(), boq.BOQ{
		Name: "BOQ-TOWER-B", ProjectId: otherProject, AnalyticAccountId: 12, CompanyId: 1,
		Currency: "USD", Version: 1, State: boq.StateDraft,
	})
	require.NoError(t, err)

	_, err = f.service.CreateRevision(f.ctx, draftId, "too early")

	var invalidState boq.InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, boq.StateDraft, invalidState.State)
}

func TestService_CreateRevision_OfLockedBOQ(t *testing.T) {
	f := setupRevisionTest(t)
	ok, err := f.boqRepo.UpdateState(f.ctx, f.boqId, boq.StateApproved, boq.StateLocked, 0, time.Time{})
	require.NoError(t, err)
	require.True(t, ok)

	revised, err := f.service.CreateRevision(f.ctx, f.boqId, "post-lock adjustment")

	require.NoError(t, err)
	assert.Equal(t, boq.StateDraft, revised.State)
	assert.Equal(t, 2, revised.Version)
}

func TestService_CreateRevision_RequiresReason(t *testing.T) {
	f := setupRevisionTest(t)

	_, err := f.service.CreateRevision(f.ctx, f.boqId, "")

	var validation boq.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestService_CreateRevision_RequiresUser(t *testing.T) {
	f := setupRevisionTest(t)

	_, err := f.service.CreateRevision(context.Background(), f.boqId, "no actor")

	require.ErrorIs(t, err, user.ErrNoUser)
}

func TestService_CreateRevision_FailsWhenLinkCannotBeStored(t *testing.T) {
	f := setupRevisionTest(t)
	stub := NewStubRepo()
	stub.StoreErr = errors.New("link table unavailable")
	service := NewService(stub, f.boqRepo)

	_, err := service.CreateRevision(f.ctx, f.boqId, "steel rates changed")

	require.ErrorIs(t, err, stub.StoreErr)
}

func TestService_History_ListsLinksFromEitherSide(t *testing.T) {
	f := setupRevisionTest(t)
	stub := NewStubRepo()
	stub.Revisions = []Revision{
		{Id: 1, OriginalBoqId: f.boqId, NewBoqId: 99, Reason: "scope change"},
		{Id: 2, OriginalBoqId: 98, NewBoqId: f.boqId, Reason: "earlier revision"},
		{Id: 3, OriginalBoqId: 97, NewBoqId: 96, Reason: "unrelated"},
	}
	service := NewService(stub, f.boqRepo)

	history, err := service.History(f.ctx, f.boqId)

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "scope change", history[0].Reason)
	assert.Equal(t, "earlier revision", history[1].Reason)
}
