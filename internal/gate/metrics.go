package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "impactgate_gate_evaluations_total",
		Help: "Gate evaluations by resulting status",
	}, []string{"status"})

	approvalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "impactgate_gate_approvals_total",
		Help: "Successful blocker approvals",
	})

	overridesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "impactgate_gate_overrides_total",
		Help: "Force overrides",
	})

	hookFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "impactgate_gate_hook_failures_total",
		Help: "Status-change hooks that returned an error or panicked",
	})
)
