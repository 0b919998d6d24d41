// Package metrics exposes Prometheus collectors for fragmentation,
// pagination and storage.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricCreateFragments   = "create_fragments_count"
	MetricMembersBucketised = "members_bucketised_total"
	MetricPagesCreated      = "pages_created_total"
	MetricMembersPaginated  = "members_paginated_total"
	MetricPaginationRuns    = "pagination_run_seconds"
	MetricStorageOpSeconds  = "storage_op_seconds"
	MetricStorageBatchOps   = "storage_batch_ops"
	namespace               = "ldes"
	subsystem               = "server"
)

// Metrics holds the collectors of one server. All methods are safe on a nil
// receiver, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fragmentsCreated  *prometheus.CounterVec
	membersBucketised *prometheus.CounterVec
	pagesCreated      *prometheus.CounterVec
	membersPaginated  *prometheus.CounterVec
	paginationRuns    *prometheus.HistogramVec
	storageOps        *prometheus.HistogramVec
	storageBatchOps   prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fragmentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      MetricCreateFragments,
			Help:      "Buckets created by a fragmentation strategy.",
		}, []string{"view", "fragmentation_strategy"}),
		membersBucketised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      MetricMembersBucketised,
			Help:      "Members assigned to buckets.",
		}, []string{"view"}),
		pagesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      MetricPagesCreated,
			Help:      "Pages opened by pagination.",
		}, []string{"view"}),
		membersPaginated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      MetricMembersPaginated,
			Help:      "Members assigned to pages.",
		}, []string{"view"}),
		paginationRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      MetricPaginationRuns,
			Help:      "Duration of pagination pipeline runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view", "outcome"}),
		storageOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      MetricStorageOpSeconds,
			Help:      "Latency of Pebble reads, writes and batch commits.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		storageBatchOps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      MetricStorageBatchOps,
			Help:      "Operations per committed Pebble batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	m.registry.MustRegister(
		m.fragmentsCreated,
		m.membersBucketised,
		m.pagesCreated,
		m.membersPaginated,
		m.paginationRuns,
		m.storageOps,
		m.storageBatchOps,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FragmentCreated(view, strategy string) {
	if m == nil {
		return
	}
	m.fragmentsCreated.WithLabelValues(view, strategy).Inc()
}

func (m *Metrics) MembersBucketised(view string, n int) {
	if m == nil {
		return
	}
	m.membersBucketised.WithLabelValues(view).Add(float64(n))
}

func (m *Metrics) PageCreated(view string) {
	if m == nil {
		return
	}
	m.pagesCreated.WithLabelValues(view).Inc()
}

func (m *Metrics) MembersPaginated(view string, n int) {
	if m == nil {
		return
	}
	m.membersPaginated.WithLabelValues(view).Add(float64(n))
}

func (m *Metrics) PaginationRun(view string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.paginationRuns.WithLabelValues(view, outcome).Observe(elapsed.Seconds())
}
