package monitor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/soilsense/soilsense/pkg/models"
)

// SummaryReport renders the current aggregates as plain text.
func (m *Monitor) SummaryReport() string {
	m.mu.Lock()
	mt := m.snapshot()
	now := m.now()
	m.mu.Unlock()

	uptime := now.Sub(mt.LastReset).Hours()

	var b strings.Builder
	b.WriteString("AI Suggestions Cache Performance Report\n")
	b.WriteString("=======================================\n")
	b.WriteString("Overall Stats:\n")
	fmt.Fprintf(&b, "  Total Requests:   %d\n", mt.TotalRequests)
	fmt.Fprintf(&b, "  Cache Hit Rate:   %.1f%% (%d hits, %d misses)\n", mt.HitRate*100, mt.CacheHits, mt.CacheMisses)
	fmt.Fprintf(&b, "  Average Response: %.1fms\n", mt.AverageResponseTime)
	fmt.Fprintf(&b, "  Uptime:           %.1f hours\n", uptime)

	b.WriteString("\nModel Usage:\n")
	tags := make([]string, 0, len(mt.ModelTypeStats))
	for k := range mt.ModelTypeStats {
		tags = append(tags, k)
	}
	sort.Strings(tags)
	if len(tags) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, k := range tags {
		fmt.Fprintf(&b, "  %s: %d requests\n", k, mt.ModelTypeStats[k])
	}

	b.WriteString("\nError Summary:\n")
	fmt.Fprintf(&b, "  AI Errors:    %d\n", mt.ErrorStats.AIErrors)
	fmt.Fprintf(&b, "  Cache Errors: %d\n", mt.ErrorStats.CacheErrors)
	fmt.Fprintf(&b, "  DB Errors:    %d\n", mt.ErrorStats.DBErrors)

	b.WriteString("\nPerformance Insights:\n")
	for _, line := range insights(mt) {
		fmt.Fprintf(&b, "  - %s\n", line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func insights(mt models.CacheMetrics) []string {
	var out []string

	switch {
	case mt.HitRate > 0.8:
		out = append(out, "Excellent cache performance (>80% hit rate)")
	case mt.HitRate > 0.6:
		out = append(out, "Good cache performance (60-80% hit rate)")
	case mt.HitRate > 0.3:
		out = append(out, "Moderate cache performance (30-60% hit rate)")
	case mt.TotalRequests > 0:
		out = append(out, "Low cache performance (<30% hit rate), review the cache strategy")
	}

	switch {
	case mt.AverageResponseTime < 100:
		out = append(out, "Fast response times (<100ms average)")
	case mt.AverageResponseTime < 500:
		out = append(out, "Moderate response times (100-500ms average)")
	case mt.TotalRequests > 0:
		out = append(out, "Slow response times (>500ms average), optimization needed")
	}

	var total int64
	for _, v := range mt.ModelTypeStats {
		total += v
	}
	if total > 0 {
		rule := float64(mt.ModelTypeStats[models.ModelRuleBased]) / float64(total) * 100
		out = append(out, fmt.Sprintf("%.1f%% rule-based, %.1f%% AI-powered", rule, 100-rule))
	}

	errs := mt.ErrorStats.Total()
	switch {
	case mt.TotalRequests > 0 && errs == 0:
		out = append(out, "Zero errors, system running smoothly")
	case mt.TotalRequests > 0:
		out = append(out, fmt.Sprintf("%.1f%% error rate (%d errors)", float64(errs)/float64(mt.TotalRequests)*100, errs))
	}
	return out
}
