package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EntriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_entries_created_total",
		Help: "no. of entries created",
	})
	EntriesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_entries_updated_total",
		Help: "no. of entries edited",
	})
	EntriesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lyricbox_entries_deleted_total",
			Help: "no. of entries removed, by who removed them",
		},
		[]string{"actor"},
	)
	ListRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_list_requests_total",
		Help: "no. of list operations",
	})
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lyricbox_auth_failures_total",
			Help: "no. of rejected delete keys",
		},
		[]string{"operation"},
	)
	UpdateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_update_conflicts_total",
		Help: "no. of edits rejected because the entry moved",
	})
	ParseCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_parse_cache_hits_total",
		Help: "no. of parse cache hits",
	})
	ParseCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_parse_cache_misses_total",
		Help: "no. of parse cache misses",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lyricbox_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lyricbox_store_duration_seconds",
			Help:    "store call latency in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op"},
	)
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lyricbox_store_errors_total",
			Help: "no. of failed store calls",
		},
		[]string{"op"},
	)
	RateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_rate_limit_hits_total",
		Help: "no. of requests rejected by the rate limiter",
	})
	RateLimitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_rate_limit_failures_total",
		Help: "no. of limiter checks skipped because the store failed",
	})
	CounterPurges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lyricbox_counter_purge_cycles_total",
		Help: "no. of expired-counter cleanup cycles",
	})
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lyricbox_recent_error_rate_percent",
		Help: "5min rolling avg error rate percentage",
	})
)
