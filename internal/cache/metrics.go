// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	hitsDesc   = prometheus.NewDesc("radnice_cache_hits_total", "Cache lookups that found a value", nil, nil)
	missesDesc = prometheus.NewDesc("radnice_cache_misses_total", "Cache lookups that found nothing", nil, nil)
	setsDesc   = prometheus.NewDesc("radnice_cache_sets_total", "Values written to the cache", nil, nil)
	itemsDesc  = prometheus.NewDesc("radnice_cache_items", "Entries held by the in-memory cache", nil, nil)
)

// Collector exports the counters of a StatsProvider.
type Collector struct {
	stats StatsProvider
}

// NewCollector returns a Collector reading from p.
func NewCollector(p StatsProvider) *Collector {
	return &Collector{stats: p}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- hitsDesc
	ch <- missesDesc
	ch <- setsDesc
	ch <- itemsDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Stats()
	ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(setsDesc, prometheus.CounterValue, float64(s.Sets))
	if s.Items >= 0 {
		ch <- prometheus.MustNewConstMetric(itemsDesc, prometheus.GaugeValue, float64(s.Items))
	}
}
