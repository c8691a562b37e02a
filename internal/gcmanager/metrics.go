package gcmanager

import "github.com/prometheus/client_golang/prometheus"

// Collector adapts a Manager's running totals to prometheus.Collector so
// internal/runtime can register it on the process registry alongside the
// profiler's and scheduler's collectors.
type Collector struct {
	mgr *Manager

	totalCollected *prometheus.Desc
	disabledBytes  *prometheus.Desc
	enabled        *prometheus.Desc
}

func NewCollector(m *Manager) *Collector {
	return &Collector{
		mgr: m,
		totalCollected: prometheus.NewDesc(
			"otter_gc_objects_collected_total", "Total objects reclaimed across every collection pass.", nil, nil),
		disabledBytes: prometheus.NewDesc(
			"otter_gc_disabled_bytes", "Bytes allocated while collection was disabled.", nil, nil),
		enabled: prometheus.NewDesc(
			"otter_gc_enabled", "1 if collection is currently enabled, 0 if disabled.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalCollected
	ch <- c.disabledBytes
	ch <- c.enabled
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.totalCollected, prometheus.CounterValue, float64(c.mgr.TotalCollected()))
	ch <- prometheus.MustNewConstMetric(c.disabledBytes, prometheus.GaugeValue, float64(c.mgr.DisabledBytes()))

	enabledValue := 0.0
	if c.mgr.Enabled() {
		enabledValue = 1.0
	}

	ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, enabledValue)
}
