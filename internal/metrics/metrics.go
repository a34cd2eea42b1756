package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesFetched counts batch requests by outcome.
	BatchesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_batches_fetched_total",
			Help: "Total batch requests issued, by outcome",
		},
		[]string{"status"}, // success, transient, malformed
	)

	// RecordsExtracted counts records emitted per layer.
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_records_extracted_total",
			Help: "Total records extracted, by layer",
		},
		[]string{"layer"},
	)

	// LayersDiscovered counts queryable layers found per discovery run.
	LayersDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_layers_discovered_total",
			Help: "Total non-empty matching layers discovered",
		},
	)

	// DiscoveryNodeFailures counts directory nodes skipped during walks.
	DiscoveryNodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_discovery_node_failures_total",
			Help: "Total directory nodes skipped due to fetch failures",
		},
	)

	// CheckpointCommits counts durable checkpoint writes.
	CheckpointCommits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_checkpoint_commits_total",
			Help: "Total extraction checkpoint commits",
		},
	)

	// BatchDuration observes per-batch fetch latency.
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_batch_duration_seconds",
			Help:    "Duration of batch fetches",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// PermitsLinked counts linker decisions by tier.
	PermitsLinked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_permits_linked_total",
			Help: "Total permits linked, by tier",
		},
		[]string{"tier"}, // address, hash, unlinked
	)
)
