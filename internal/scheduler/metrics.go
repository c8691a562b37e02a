package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Collector adapts a WorkerPool's Stats (and, if non-nil, a Monitor's
// current load) to prometheus.Collector so internal/runtime can register it
// on the process registry alongside the profiler's and GC manager's
// collectors.
type Collector struct {
	pool    *WorkerPool
	monitor *Monitor

	totalThreads   *prometheus.Desc
	activeThreads  *prometheus.Desc
	tasksScheduled *prometheus.Desc
	tasksCompleted *prometheus.Desc
	cpuUsage       *prometheus.Desc
}

func NewCollector(pool *WorkerPool, monitor *Monitor) *Collector {
	return &Collector{
		pool:    pool,
		monitor: monitor,
		totalThreads: prometheus.NewDesc(
			"otter_scheduler_pool_threads", "Number of worker goroutines in the pool.", nil, nil),
		activeThreads: prometheus.NewDesc(
			"otter_scheduler_active_threads", "Process-wide goroutine count sampled by the monitor.", nil, nil),
		tasksScheduled: prometheus.NewDesc(
			"otter_scheduler_tasks_scheduled_total", "Total tasks submitted to the pool.", nil, nil),
		tasksCompleted: prometheus.NewDesc(
			"otter_scheduler_tasks_completed_total", "Total tasks finished by the pool.", nil, nil),
		cpuUsage: prometheus.NewDesc(
			"otter_scheduler_cpu_usage_percent", "CPU usage percent last sampled by the monitor.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalThreads
	ch <- c.activeThreads
	ch <- c.tasksScheduled
	ch <- c.tasksCompleted
	ch <- c.cpuUsage
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.Stats()

	ch <- prometheus.MustNewConstMetric(c.totalThreads, prometheus.GaugeValue, float64(stats.TotalThreads))
	ch <- prometheus.MustNewConstMetric(c.tasksScheduled, prometheus.CounterValue, float64(stats.TasksScheduled))
	ch <- prometheus.MustNewConstMetric(c.tasksCompleted, prometheus.CounterValue, float64(stats.TasksCompleted))

	if c.monitor == nil {
		return
	}

	load := c.monitor.CurrentLoad()
	ch <- prometheus.MustNewConstMetric(c.activeThreads, prometheus.GaugeValue, float64(load.ActiveThreads))
	ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, load.CPUUsagePercent)
}
