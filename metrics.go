package nwfetch

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "nwfetch"

// Metrics collects acquisition metrics. A nil *Metrics records nothing.
type Metrics struct {
	acquisitions  *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	downloadBytes prometheus.Counter
	stageDuration *prometheus.HistogramVec
}

// NewMetrics registers the acquisition metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		acquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "acquisitions_total",
				Help:      "Total number of runtime acquisitions by outcome",
			},
			[]string{"outcome"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
		downloadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "download_bytes_total",
				Help:      "Total number of archive bytes downloaded",
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of acquisition stages in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"stage"},
		),
	}
}

// Cache lookup results.
const (
	lookupHit    = "hit"
	lookupMiss   = "miss"
	lookupBypass = "bypass"
)

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) downloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadBytes.Add(float64(n))
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) acquisition(res *Result, err error) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(outcome(res, err)).Inc()
}

func outcome(res *Result, err error) string {
	var (
		resErr *ResolutionError
		fetErr *FetchError
		extErr *ExtractionError
	)
	switch {
	case err == nil && res != nil && res.CacheHit:
		return "cached"
	case err == nil:
		return "downloaded"
	case errors.As(err, &resErr):
		return "resolution_error"
	case errors.As(err, &fetErr):
		return "fetch_error"
	case errors.As(err, &extErr):
		return "extraction_error"
	default:
		return "error"
	}
}
