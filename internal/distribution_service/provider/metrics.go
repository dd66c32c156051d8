package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notify",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of send requests to message providers.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider_name"},
	)

	providerSendsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notify",
			Name:      "provider_sends_total",
			Help:      "Total provider send attempts.",
		},
		[]string{"provider_name", "status"}, // status: "success", "failed", "rejected_local"
	)
)
