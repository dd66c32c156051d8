package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchResultsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "dispatch_results_total",
			Help:      "Per-recipient dispatch results.",
		},
		[]string{"status"}, // "sent", "failed", "scheduled"
	)

	campaignDispatchDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notify",
			Name:      "campaign_dispatch_duration_seconds",
			Help:      "Duration of whole-campaign dispatch attempts.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"}, // "single", "bulk", "retry"
	)
)
