package app

import (
	"database/sql"

	"github.com/sitemate/sitemate/internal/config"
	"github.com/sitemate/sitemate/internal/event_bus"
	"github.com/sitemate/sitemate/internal/utils"
	"github.com/sitemate/sitemate/pkg/billing"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/consumption"
	"github.com/sitemate/sitemate/pkg/inventory"
	"github.com/sitemate/sitemate/pkg/project"
	"github.com/sitemate/sitemate/pkg/purchase"
	"github.com/sitemate/sitemate/pkg/revision"
	"github.com/sitemate/sitemate/pkg/user"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus *event_bus.EventBus
	Clock    utils.Clock

	UserService user.Service
	UserHandler *user.Handler

	ProjectRepo    project.Repo
	ProjectService project.Service
	ProjectHandler *project.Handler

	BOQRepo    boq.Repo
	BOQService boq.Service
	BOQHandler *boq.Handler

	ConsumptionRepo consumption.Repo
	Gatekeeper      *consumption.Gatekeeper

	RevisionRepo    revision.Repo
	RevisionService revision.Service
	RevisionHandler *revision.Handler

	PurchaseRepo    purchase.Repo
	PurchaseService purchase.Service
	PurchaseHandler *purchase.Handler

	RateRepo       billing.RateRepo
	BillingRepo    billing.Repo
	BillingService billing.Service
	BillingHandler *billing.Handler

	InventoryRepo    inventory.Repo
	InventoryService inventory.Service
	InventoryHandler *inventory.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *sql.DB, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.EventBus = event_bus.NewEventBus()
	deps.Clock = &utils.SystemClock{}

	deps.UserService = user.NewUserService(user.NewUserRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.ProjectRepo = project.NewRepo(db)
	deps.ProjectService = project.NewService(deps.ProjectRepo)
	deps.ProjectHandler = project.NewHandler(deps.ProjectService)

	deps.BOQRepo = boq.NewRepo(db)
	deps.ConsumptionRepo = consumption.NewRepo(db)
	deps.PurchaseRepo = purchase.NewRepo(db)

	deps.BOQService = boq.NewService(deps.BOQRepo, deps.ProjectService, deps.ConsumptionRepo,
		deps.PurchaseRepo, deps.Clock, deps.EventBus, cfg.Company.Id, cfg.Company.Currency)
	deps.BOQHandler = boq.NewHandler(deps.BOQService)

	deps.Gatekeeper = consumption.NewGatekeeper(db, deps.BOQRepo, deps.ConsumptionRepo, deps.EventBus)

	deps.RevisionRepo = revision.NewRepo(db)
	deps.RevisionService = revision.NewService(deps.RevisionRepo, deps.BOQRepo)
	deps.RevisionHandler = revision.NewHandler(deps.RevisionService)

	deps.PurchaseService = purchase.NewService(deps.PurchaseRepo, deps.BOQRepo, deps.EventBus)
	deps.PurchaseHandler = purchase.NewHandler(deps.PurchaseService)

	deps.RateRepo = billing.NewRateRepo(db)
	deps.BillingRepo = billing.NewRepo(db)
	deps.BillingService = billing.NewService(deps.BillingRepo, deps.RateRepo, deps.BOQRepo,
		deps.Gatekeeper, deps.Clock, cfg.Company.Currency)
	deps.BillingHandler = billing.NewHandler(deps.BillingService)

	deps.InventoryRepo = inventory.NewRepo(db)
	deps.InventoryService = inventory.NewService(deps.InventoryRepo, deps.BOQRepo, deps.Gatekeeper, deps.Clock)
	deps.InventoryHandler = inventory.NewHandler(deps.InventoryService)

	return deps
}
