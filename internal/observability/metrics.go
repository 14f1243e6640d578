package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// counter store operations labelled by operation, metric and outcome
	CounterOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_counter_operations_total",
			Help: "Counter store operations",
		},
		[]string{"op", "metric", "outcome"},
	)

	// counter store latency per operation
	CounterLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_counter_duration_seconds",
			Help:    "Duration of counter store operations",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{"op"},
	)

	// events counted, labelled by metric
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_events_total",
			Help: "Total events counted",
		},
		[]string{"metric"},
	)

	// events that were not counted, labelled by metric and reason
	DroppedEventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_events_dropped_total",
			Help: "Events that were not counted",
		},
		[]string{"metric", "reason"},
	)

	// ad selections per position and outcome (served, empty, fallback)
	AdSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_ad_selections_total",
			Help: "Ad selection outcomes",
		},
		[]string{"position", "outcome"},
	)

	// reports built, labelled by kind and degraded flag
	ReportCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_reports_total",
			Help: "Reports built",
		},
		[]string{"kind", "degraded"},
	)

	// time spent building reports
	ReportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_report_duration_seconds",
			Help:    "Duration of report generation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// headline numbers of the last scheduled report snapshot
	SnapshotTotalViews = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_snapshot_total_views",
			Help: "Total views in the last report snapshot",
		},
	)
	SnapshotPublished = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_snapshot_published_posts",
			Help: "Published posts in the last report snapshot",
		},
	)

	// rate limit requests and hits per scope
	RateLimitRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_ratelimit_requests_total",
			Help: "Total rate limit checks",
		},
		[]string{"scope"},
	)
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_ratelimit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"scope"},
	)

	// analytics events dropped or failed to persist
	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_analytics_errors_total",
			Help: "Analytics events dropped or failed to persist",
		},
		[]string{"reason"},
	)

	// click URL macro expansions per macro and outcome
	MacroExpansions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_click_macro_expansions_total",
			Help: "Macro expansions in click destination URLs",
		},
		[]string{"macro", "success"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		CounterOps,
		CounterLatency,
		EventCount,
		DroppedEventCount,
		AdSelections,
		ReportCount,
		ReportDuration,
		SnapshotTotalViews,
		SnapshotPublished,
		RateLimitRequests,
		RateLimitHits,
		AnalyticsErrors,
		MacroExpansions,
	)
}
