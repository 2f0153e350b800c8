package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studybuddy",
		Name:      "queries_served_total",
		Help:      "Queries answered, labeled by whether document context was used.",
	}, []string{"grounded"})

	PagesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studybuddy",
		Name:      "pages_ingested_total",
		Help:      "Document pages embedded and stored.",
	})

	SummaryUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studybuddy",
		Name:      "summary_updates_total",
		Help:      "Session summaries merged or compressed.",
	})

	DeferredJobFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "studybuddy",
		Name:      "deferred_job_failures_total",
		Help:      "Background conversation jobs that failed permanently.",
	})
)
