package dashboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheMetricsMu          sync.Mutex
	cacheMetricsInitialized bool

	cacheHitCounter    prometheus.Counter
	cacheMissCounter   prometheus.Counter
	viewBuildHistogram prometheus.Histogram
	lastBuildGauge     prometheus.Gauge
	cacheMetricsError  error
)

// SetupCacheMetrics registers the Prometheus metrics observing the
// dashboard view cache. Registration happens once; subsequent calls
// return the first outcome.
func SetupCacheMetrics(reg prometheus.Registerer) error {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if cacheMetricsInitialized {
		return cacheMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cacheHitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renewals_dashboard_cache_hits_total",
		Help: "Number of dashboard views served from cache.",
	})
	cacheMissCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renewals_dashboard_cache_miss_total",
		Help: "Number of dashboard views rebuilt from the roster.",
	})
	viewBuildHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "renewals_dashboard_build_duration_seconds",
		Help:    "Duration required to aggregate the dashboard view.",
		Buckets: prometheus.DefBuckets,
	})
	lastBuildGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "renewals_dashboard_last_build_timestamp_seconds",
		Help: "Unix time of the most recent dashboard view build.",
	})

	// A Gauge also satisfies the Counter interface, so the Gauge case
	// must come first in the recovery switch.
	for _, collector := range []prometheus.Collector{cacheHitCounter, cacheMissCounter, viewBuildHistogram, lastBuildGauge} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				switch c := already.ExistingCollector.(type) {
				case prometheus.Gauge:
					lastBuildGauge = c
				case prometheus.Counter:
					if collector == cacheHitCounter {
						cacheHitCounter = c
					} else {
						cacheMissCounter = c
					}
				case prometheus.Histogram:
					viewBuildHistogram = c
				default:
					cacheMetricsError = fmt.Errorf("dashboard cache metrics: unexpected collector type %T", c)
				}
				continue
			}
			cacheMetricsError = err
			cacheHitCounter = nil
			cacheMissCounter = nil
			viewBuildHistogram = nil
			lastBuildGauge = nil
			cacheMetricsInitialized = true
			return cacheMetricsError
		}
	}

	cacheMetricsInitialized = true
	return cacheMetricsError
}

func recordCacheHit() {
	if cacheHitCounter == nil {
		return
	}
	cacheHitCounter.Inc()
}

func recordCacheMiss() {
	if cacheMissCounter == nil {
		return
	}
	cacheMissCounter.Inc()
}

func observeBuildDuration(d time.Duration) {
	if viewBuildHistogram == nil {
		return
	}
	viewBuildHistogram.Observe(d.Seconds())
}

func markBuildTimestamp() {
	if lastBuildGauge == nil {
		return
	}
	lastBuildGauge.SetToCurrentTime()
}
