package profiler

import "github.com/prometheus/client_golang/prometheus"

// Collector adapts a Profiler's Snapshot to prometheus.Collector so
// internal/runtime can register it on the process registry alongside the GC
// manager's and scheduler's collectors.
type Collector struct {
	profiler *Profiler

	hotFunctions *prometheus.Desc
	callCount    *prometheus.Desc
	memoryUsage  *prometheus.Desc
	potentialLeaks *prometheus.Desc
}

func NewCollector(p *Profiler) *Collector {
	return &Collector{
		profiler: p,
		hotFunctions: prometheus.NewDesc(
			"otter_profiler_hot_functions", "Number of functions currently flagged as hot.", nil, nil),
		callCount: prometheus.NewDesc(
			"otter_profiler_function_calls_total", "Total recorded calls for a function.", []string{"function"}, nil),
		memoryUsage: prometheus.NewDesc(
			"otter_profiler_function_memory_bytes", "Current memory usage attributed to a function.", []string{"function"}, nil),
		potentialLeaks: prometheus.NewDesc(
			"otter_profiler_potential_leaks", "Number of functions flagged as potentially leaking memory.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hotFunctions
	ch <- c.callCount
	ch <- c.memoryUsage
	ch <- c.potentialLeaks
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.profiler.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.hotFunctions, prometheus.GaugeValue, float64(len(snap.HotFunctions)))
	ch <- prometheus.MustNewConstMetric(c.potentialLeaks, prometheus.GaugeValue, float64(len(snap.Leaks)))

	for _, fn := range snap.Functions {
		ch <- prometheus.MustNewConstMetric(c.callCount, prometheus.CounterValue, float64(fn.CallCount), fn.FunctionName)
	}

	for _, mem := range snap.Memory {
		ch <- prometheus.MustNewConstMetric(c.memoryUsage, prometheus.GaugeValue, float64(mem.CurrentUsage), mem.FunctionName)
	}
}
