package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sitemate/sitemate/internal/config"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Projects
	r.HandleFunc("/api/project", deps.ProjectHandler.GetAll).Methods("GET")
	r.HandleFunc("/api/project", deps.ProjectHandler.Create).Methods("POST")
	r.HandleFunc("/api/project/{id}", deps.ProjectHandler.Get).Methods("GET")

	// Bill of Quantities
	r.HandleFunc("/api/boq", deps.BOQHandler.GetAll).Methods("GET")
	r.HandleFunc("/api/boq", deps.BOQHandler.Create).Methods("POST")
	r.HandleFunc("/api/boq/{id}", deps.BOQHandler.Get).Methods("GET")
	r.HandleFunc("/api/boq/{id}/{action:submit|approve|lock|close}", deps.BOQHandler.Transition).Methods("POST")
	r.HandleFunc("/api/boq/{id}/section", deps.BOQHandler.AddSection).Methods("POST")
	r.HandleFunc("/api/boq/{id}/line", deps.BOQHandler.AddLine).Methods("POST")
	r.HandleFunc("/api/boq/line/{lineId}", deps.BOQHandler.UpdateLine).Methods("PUT")
	r.HandleFunc("/api/boq/line/{lineId}", deps.BOQHandler.DeleteLine).Methods("DELETE")
	r.HandleFunc("/api/boq/line/{lineId}/status", deps.BOQHandler.LineStatus).Methods("GET")
	r.HandleFunc("/api/boq/{id}/purchasable-lines", deps.BOQHandler.PurchasableLines).Methods("GET")

	// BOQ revisions
	r.HandleFunc("/api/boq/{id}/revise", deps.RevisionHandler.Create).Methods("POST")
	r.HandleFunc("/api/boq/{id}/revisions", deps.RevisionHandler.History).Methods("GET")

	// Purchase orders
	r.HandleFunc("/api/purchase-order", deps.PurchaseHandler.GetAll).Methods("GET")
	r.HandleFunc("/api/purchase-order", deps.PurchaseHandler.Create).Methods("POST")
	r.HandleFunc("/api/purchase-order/{id}", deps.PurchaseHandler.Get).Methods("GET")
	r.HandleFunc("/api/purchase-order/{id}/confirm", deps.PurchaseHandler.Confirm).Methods("POST")
	r.HandleFunc("/api/purchase-order/{id}/cancel", deps.PurchaseHandler.Cancel).Methods("POST")

	// Vendor bills
	r.HandleFunc("/api/bill", deps.BillingHandler.GetAll).Methods("GET")
	r.HandleFunc("/api/bill", deps.BillingHandler.Create).Methods("POST")
	r.HandleFunc("/api/bill/{id}", deps.BillingHandler.Get).Methods("GET")
	r.HandleFunc("/api/bill/{id}/post", deps.BillingHandler.Post).Methods("POST")

	// Stock moves
	r.HandleFunc("/api/stock-move", deps.InventoryHandler.GetAll).Methods("GET")
	r.HandleFunc("/api/stock-move", deps.InventoryHandler.Create).Methods("POST")
	r.HandleFunc("/api/stock-move/{id}", deps.InventoryHandler.Get).Methods("GET")
	r.HandleFunc("/api/stock-move/{id}/complete", deps.InventoryHandler.Complete).Methods("POST")
	r.HandleFunc("/api/stock-move/{id}/cancel", deps.InventoryHandler.Cancel).Methods("POST")

	// User management
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user", deps.UserHandler.CreateUser).Methods("POST")
	r.HandleFunc("/api/user", deps.UserHandler.GetAvailableUsers).Methods("GET")

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
}
