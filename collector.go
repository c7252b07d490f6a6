package serial

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "serial_mcp"

// Collector exports a Manager's Metrics to Prometheus. Values are read from
// the live counters at scrape time, so nothing is double counted.
type Collector struct {
	metrics *Metrics

	activeSessions  *prometheus.Desc
	opens           *prometheus.Desc
	openFailures    *prometheus.Desc
	closes          *prometheus.Desc
	connectionsLost *prometheus.Desc
	operations      *prometheus.Desc
	operationErrors *prometheus.Desc
	bytes           *prometheus.Desc
	emptyReads      *prometheus.Desc
	partialWrites   *prometheus.Desc
	errorsByKind    *prometheus.Desc
	bufferPool      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(m *Manager) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, labels, nil)
	}
	return &Collector{
		metrics:         m.metrics,
		activeSessions:  desc("active_sessions", "Currently open serial sessions."),
		opens:           desc("opens_total", "Successful session opens."),
		openFailures:    desc("open_failures_total", "Failed session opens."),
		closes:          desc("closes_total", "Sessions closed by request or shutdown."),
		connectionsLost: desc("connections_lost_total", "Sessions destroyed by device faults."),
		operations:      desc("operations_total", "Device operations by direction.", "op"),
		operationErrors: desc("operation_errors_total", "Failed device operations by direction.", "op"),
		bytes:           desc("bytes_total", "Bytes transferred by direction.", "op"),
		emptyReads:      desc("empty_reads_total", "Reads that ended with no data."),
		partialWrites:   desc("partial_writes_total", "Device writes that accepted only part of the payload."),
		errorsByKind:    desc("errors_total", "Errors by category.", "category"),
		bufferPool:      desc("buffer_pool_requests_total", "Read buffer requests by pool result.", "result"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessions
	ch <- c.opens
	ch <- c.openFailures
	ch <- c.closes
	ch <- c.connectionsLost
	ch <- c.operations
	ch <- c.operationErrors
	ch <- c.bytes
	ch <- c.emptyReads
	ch <- c.partialWrites
	ch <- c.errorsByKind
	ch <- c.bufferPool
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.metrics
	gauge := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(c.activeSessions, m.ActiveSessions.Load())
	counter(c.opens, m.SuccessfulOpens.Load())
	counter(c.openFailures, m.OpenFailures.Load())
	counter(c.closes, m.Closes.Load())
	counter(c.connectionsLost, m.ConnectionsLost.Load())

	counter(c.operations, m.ReadOperations.Load(), "read")
	counter(c.operations, m.WriteOperations.Load(), "write")
	counter(c.operationErrors, m.ReadErrors.Load(), "read")
	counter(c.operationErrors, m.WriteErrors.Load(), "write")
	counter(c.bytes, m.BytesRead.Load(), "read")
	counter(c.bytes, m.BytesWritten.Load(), "write")
	counter(c.emptyReads, m.EmptyReads.Load())
	counter(c.partialWrites, m.PartialWrites.Load())

	counter(c.errorsByKind, m.ConfigurationErrors.Load(), "configuration")
	counter(c.errorsByKind, m.EncodingErrors.Load(), "encoding")
	counter(c.errorsByKind, m.HandleErrors.Load(), "handle")
	counter(c.errorsByKind, m.DeviceErrors.Load(), "device")
	counter(c.errorsByKind, m.CanceledOperations.Load(), "canceled")

	counter(c.bufferPool, m.BufferPoolHits.Load(), "hit")
	counter(c.bufferPool, m.BufferPoolMisses.Load(), "miss")
}
