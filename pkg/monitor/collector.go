package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsDesc = prometheus.NewDesc(
		"soilsense_cache_requests_total",
		"Suggestion lookups by outcome since the last reset.",
		[]string{"result"}, nil,
	)
	responseDesc = prometheus.NewDesc(
		"soilsense_cache_response_milliseconds_total",
		"Summed lookup latency in milliseconds since the last reset.",
		nil, nil,
	)
	hitRateDesc = prometheus.NewDesc(
		"soilsense_cache_hit_ratio",
		"Cache hits divided by lookups since the last reset.",
		nil, nil,
	)
	modelDesc = prometheus.NewDesc(
		"soilsense_cache_model_requests_total",
		"Lookups by the model tag of the served suggestion.",
		[]string{"model"}, nil,
	)
	errorsDesc = prometheus.NewDesc(
		"soilsense_cache_errors_total",
		"Errors by taxonomy bucket since the last reset.",
		[]string{"type"}, nil,
	)
	eventsDesc = prometheus.NewDesc(
		"soilsense_cache_events",
		"Events currently held in the event log.",
		nil, nil,
	)
)

// Describe implements prometheus.Collector.
func (m *Monitor) Describe(ch chan<- *prometheus.Desc) {
	ch <- requestsDesc
	ch <- responseDesc
	ch <- hitRateDesc
	ch <- modelDesc
	ch <- errorsDesc
	ch <- eventsDesc
}

// Collect implements prometheus.Collector.
func (m *Monitor) Collect(ch chan<- prometheus.Metric) {
	m.mu.Lock()
	mt := m.snapshot()
	n := m.n
	m.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(mt.CacheHits), "hit")
	ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(mt.CacheMisses), "miss")
	ch <- prometheus.MustNewConstMetric(responseDesc, prometheus.CounterValue, mt.TotalResponseTime)
	ch <- prometheus.MustNewConstMetric(hitRateDesc, prometheus.GaugeValue, mt.HitRate)
	for model, count := range mt.ModelTypeStats {
		ch <- prometheus.MustNewConstMetric(modelDesc, prometheus.CounterValue, float64(count), model)
	}
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(mt.ErrorStats.AIErrors), "ai")
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(mt.ErrorStats.CacheErrors), "cache")
	ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(mt.ErrorStats.DBErrors), "db")
	ch <- prometheus.MustNewConstMetric(eventsDesc, prometheus.GaugeValue, float64(n))
}
