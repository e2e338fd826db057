package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Budget gate outcomes. Rejection reasons mirror the error taxonomy so alerts
// can distinguish genuine overspend attempts from lock contention.
var (
	DrawsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitemate_boq_draws_accepted_total",
		Help: "Number of budget draws accepted by the consumption gatekeeper.",
	})

	DrawsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitemate_boq_draws_rejected_total",
		Help: "Number of budget draws rejected by the consumption gatekeeper.",
	}, []string{"reason"})
)

const (
	ReasonBudgetExceeded = "budget_exceeded"
	ReasonLockContention = "lock_contention"
	ReasonInvalidState   = "invalid_state"
)
