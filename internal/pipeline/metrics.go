package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes recorded on the turns counter.
const (
	outcomeCompleted  = "completed"
	outcomeDegraded   = "degraded"
	outcomeNoEvidence = "no_evidence"
	outcomeBlocked    = "blocked"
	outcomeErrored    = "errored"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evidenced",
		Subsystem: "pipeline",
		Name:      "turns_total",
		Help:      "Answer turns by outcome.",
	}, []string{"outcome"})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evidenced",
		Subsystem: "pipeline",
		Name:      "cache_hits_total",
		Help:      "Questions answered from the article cache without live retrieval.",
	})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evidenced",
		Subsystem: "pipeline",
		Name:      "turn_duration_seconds",
		Help:      "End-to-end Answer latency.",
		Buckets:   prometheus.DefBuckets,
	})
)
