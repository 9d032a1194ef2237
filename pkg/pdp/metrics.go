//
//  Copyright © Manetu Inc. All rights reserved.
//

package pdp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pgw_decision_duration_seconds",
		Help:    "Time taken for policy decision calls, including retries",
		Buckets: prometheus.DefBuckets,
	})

	// outcome is allow/deny for engine decisions and error for fallbacks
	decisionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pgw_decisions_total",
		Help: "Policy decisions by outcome",
	}, []string{"outcome"})

	engineFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pgw_engine_failures_total",
		Help: "Failed attempts to reach the policy engine",
	})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pgw_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	})
)

const (
	outcomeAllow = "allow"
	outcomeDeny  = "deny"
	outcomeError = "error"
)
