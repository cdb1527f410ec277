package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BillingOpsTotal counts billing operations by operation and outcome.
	BillingOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekit",
		Subsystem: "billing",
		Name:      "operations_total",
		Help:      "Total billing operations by operation and outcome.",
	}, []string{"operation", "outcome"})

	// BillingOpDuration tracks billing operation latency, dominated by the
	// external processor's round trips.
	BillingOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gatekit",
		Subsystem: "billing",
		Name:      "operation_duration_seconds",
		Help:      "Billing operation duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// StatusDriftTotal counts reconciliations where the cached subscription
	// status differed from the external source of truth.
	StatusDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gatekit",
		Subsystem: "billing",
		Name:      "status_drift_total",
		Help:      "Reconciliations that detected local/external status drift.",
	})

	// LoginsTotal counts completed logins by outcome.
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gatekit",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Completed login attempts by outcome.",
	}, []string{"outcome"})

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gatekit",
		Subsystem: "auth",
		Name:      "active_sessions",
		Help:      "Number of live sessions in the session store.",
	})
)
