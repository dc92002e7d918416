package mach

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation metrics for monitoring task port usage
var (
	// Operation counters
	taskAcquireCount   uint64
	taskReleaseCount   uint64
	threadReleaseCount uint64
	memoryReads        uint64
	memoryWrites       uint64
	protectionChanges  uint64
	threadEnumerations uint64
	registerOps        uint64

	// Timing metrics (nanoseconds)
	totalAcquireTime uint64

	// Error counters
	kernelErrors        uint64
	invariantViolations uint64
)

// Metrics is a point-in-time copy of the package counters.
type Metrics struct {
	TasksAcquired       uint64 `json:"tasks_acquired"`
	TasksReleased       uint64 `json:"tasks_released"`
	ThreadsReleased     uint64 `json:"threads_released"`
	MemoryReads         uint64 `json:"memory_reads"`
	MemoryWrites        uint64 `json:"memory_writes"`
	ProtectionChanges   uint64 `json:"protection_changes"`
	ThreadEnumerations  uint64 `json:"thread_enumerations"`
	RegisterOps         uint64 `json:"register_operations"`
	AvgAcquireTimeNs    uint64 `json:"avg_acquire_time_ns"`
	KernelErrors        uint64 `json:"kernel_errors"`
	InvariantViolations uint64 `json:"invariant_violations"`
}

// GetMetrics returns current metrics
func GetMetrics() Metrics {
	acquired := atomic.LoadUint64(&taskAcquireCount)

	var avgAcquire uint64
	if acquired > 0 {
		avgAcquire = atomic.LoadUint64(&totalAcquireTime) / acquired
	}

	return Metrics{
		TasksAcquired:       acquired,
		TasksReleased:       atomic.LoadUint64(&taskReleaseCount),
		ThreadsReleased:     atomic.LoadUint64(&threadReleaseCount),
		MemoryReads:         atomic.LoadUint64(&memoryReads),
		MemoryWrites:        atomic.LoadUint64(&memoryWrites),
		ProtectionChanges:   atomic.LoadUint64(&protectionChanges),
		ThreadEnumerations:  atomic.LoadUint64(&threadEnumerations),
		RegisterOps:         atomic.LoadUint64(&registerOps),
		AvgAcquireTimeNs:    avgAcquire,
		KernelErrors:        atomic.LoadUint64(&kernelErrors),
		InvariantViolations: atomic.LoadUint64(&invariantViolations),
	}
}

// ResetMetrics clears all metrics
func ResetMetrics() {
	atomic.StoreUint64(&taskAcquireCount, 0)
	atomic.StoreUint64(&taskReleaseCount, 0)
	atomic.StoreUint64(&threadReleaseCount, 0)
	atomic.StoreUint64(&memoryReads, 0)
	atomic.StoreUint64(&memoryWrites, 0)
	atomic.StoreUint64(&protectionChanges, 0)
	atomic.StoreUint64(&threadEnumerations, 0)
	atomic.StoreUint64(&registerOps, 0)
	atomic.StoreUint64(&totalAcquireTime, 0)
	atomic.StoreUint64(&kernelErrors, 0)
	atomic.StoreUint64(&invariantViolations, 0)
}

// Internal metric recording functions
func recordTaskAcquire(duration time.Duration) {
	atomic.AddUint64(&taskAcquireCount, 1)
	atomic.AddUint64(&totalAcquireTime, uint64(duration.Nanoseconds()))
}

func recordTaskRelease() {
	atomic.AddUint64(&taskReleaseCount, 1)
}

func recordThreadRelease() {
	atomic.AddUint64(&threadReleaseCount, 1)
}

func recordMemoryRead() {
	atomic.AddUint64(&memoryReads, 1)
}

func recordMemoryWrite() {
	atomic.AddUint64(&memoryWrites, 1)
}

func recordProtectionChange() {
	atomic.AddUint64(&protectionChanges, 1)
}

func recordThreadEnumeration() {
	atomic.AddUint64(&threadEnumerations, 1)
}

func recordRegisterOp() {
	atomic.AddUint64(&registerOps, 1)
}

func recordKernelError() {
	atomic.AddUint64(&kernelErrors, 1)
}

func recordInvariantViolation() {
	atomic.AddUint64(&invariantViolations, 1)
}

// collector exports the package counters to Prometheus.
type collector struct {
	counters []counterDesc
	avg      *prometheus.Desc
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(Metrics) uint64
}

// NewCollector returns a prometheus.Collector that reports GetMetrics on
// every scrape. Register it once per registry.
func NewCollector() prometheus.Collector {
	counter := func(name, help string, value func(Metrics) uint64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName("mach", "", name), help, nil, nil),
			value: value,
		}
	}
	return &collector{
		counters: []counterDesc{
			counter("tasks_acquired_total", "Task ports acquired with task_for_pid.", func(m Metrics) uint64 { return m.TasksAcquired }),
			counter("tasks_released_total", "Task ports returned to the kernel.", func(m Metrics) uint64 { return m.TasksReleased }),
			counter("threads_released_total", "Thread ports returned to the kernel.", func(m Metrics) uint64 { return m.ThreadsReleased }),
			counter("memory_reads_total", "Words read from target tasks.", func(m Metrics) uint64 { return m.MemoryReads }),
			counter("memory_writes_total", "Words written to target tasks.", func(m Metrics) uint64 { return m.MemoryWrites }),
			counter("protection_changes_total", "mach_vm_protect calls issued.", func(m Metrics) uint64 { return m.ProtectionChanges }),
			counter("thread_enumerations_total", "task_threads snapshots taken.", func(m Metrics) uint64 { return m.ThreadEnumerations }),
			counter("register_operations_total", "thread_get_state and thread_set_state calls.", func(m Metrics) uint64 { return m.RegisterOps }),
			counter("kernel_errors_total", "Non-success kern_return_t values observed.", func(m Metrics) uint64 { return m.KernelErrors }),
			counter("invariant_violations_total", "Kernel replies that broke a call's guarantees.", func(m Metrics) uint64 { return m.InvariantViolations }),
		},
		avg: prometheus.NewDesc("mach_task_acquire_avg_seconds", "Average task_for_pid latency.", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.avg
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	m := GetMetrics()
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(m)))
	}
	ch <- prometheus.MustNewConstMetric(c.avg, prometheus.GaugeValue, time.Duration(m.AvgAcquireTimeNs).Seconds())
}
