package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "discussbot_ingest_cycle_duration_sec",
	Help:    "Duration of a full ingestion cycle (discover and drain)",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
})

var topicsSeen = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_ingest_topics_seen",
	Help: "Number of topic links found on the feed index",
})

var topicsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "discussbot_ingest_topics_recorded",
	Help: "Number of topics written to the dedup store, by namespace",
}, []string{"namespace"})

var fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_ingest_fetch_errors",
	Help: "Number of feed documents which could not be fetched",
})

var extractionErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_ingest_extraction_errors",
	Help: "Number of feed documents missing required fields",
})

var postsPublished = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_ingest_posts_published",
	Help: "Number of posts published and confirmed",
})

var publishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "discussbot_ingest_publish_errors",
	Help: "Number of failed publish attempts",
}, []string{"reason"})

var pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "discussbot_ingest_pending",
	Help: "Number of pending posts at the start of the last drain",
})

var namespaceOverlap = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "discussbot_ingest_namespace_overlap",
	Help: "Number of keys present in both namespaces after the last cycle; should always be zero",
})

var maintenanceCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "discussbot_maintenance_records",
	Help: "Number of records changed by maintenance jobs",
}, []string{"job", "result"})
