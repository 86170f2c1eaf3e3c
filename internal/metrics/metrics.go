package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_records_loaded_total",
		Help: "Total number of ledger records accepted at the ingestion boundary, labelled by source.",
	}, []string{"source"})

	LoadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_load_errors_total",
		Help: "Total number of raw rows quarantined as unkeyable or malformed, labelled by source.",
	}, []string{"source"})

	BreaksDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_breaks_total",
		Help: "Total number of breaks emitted by the matcher, labelled by break type.",
	}, []string{"type"})

	CleanMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recon_clean_matches_total",
		Help: "Total number of event keys that matched cleanly across both ledgers.",
	})

	ProposalsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recon_proposals_total",
		Help: "Total number of resolution proposals evaluated by the safeguard engine.",
	})

	ProposalsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recon_rejected_proposals_total",
		Help: "Total number of proposals rejected for referencing an unknown break.",
	})

	SafeguardOverrides = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_safeguard_overrides_total",
		Help: "Total number of auto-fixable proposals downgraded to human review, labelled by rule.",
	}, []string{"rule"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recon_run_duration_ms",
		Help:    "End-to-end reconciliation run latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)
