// Package metrics exposes a read-only Prometheus projection of the
// Host Status Array (spec.md §3, internal/hsa) so an operator can
// chart per-host queue depth and error counters without polling the
// query API.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hfs/afd-sub007/internal/hsa"
)

// Collector implements prometheus.Collector over a live HSA, reading
// counters directly from the mapped slots on every scrape rather than
// caching them, since the array itself is the single source of truth
// and may be mutated by any Send Worker at any moment.
type Collector struct {
	array *hsa.Array

	totalFileCounter *prometheus.Desc
	totalFileSize    *prometheus.Desc
	errorCounter     *prometheus.Desc
	connections      *prometheus.Desc
	connectStatus    *prometheus.Desc
}

// NewCollector wraps array for Prometheus registration.
func NewCollector(array *hsa.Array) *Collector {
	return &Collector{
		array: array,
		totalFileCounter: prometheus.NewDesc(
			"afd_host_total_file_counter", "Files remaining to send for this host.", []string{"slot"}, nil),
		totalFileSize: prometheus.NewDesc(
			"afd_host_total_file_size_bytes", "Bytes remaining to send for this host.", []string{"slot"}, nil),
		errorCounter: prometheus.NewDesc(
			"afd_host_error_counter", "Consecutive transfer errors for this host.", []string{"slot"}, nil),
		connections: prometheus.NewDesc(
			"afd_host_connections", "Send Worker connections opened for this host.", []string{"slot"}, nil),
		connectStatus: prometheus.NewDesc(
			"afd_host_connect_status", "Current ConnectStatus enum value for this host.", []string{"slot"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalFileCounter
	ch <- c.totalFileSize
	ch <- c.errorCounter
	ch <- c.connections
	ch <- c.connectStatus
}

// Collect implements prometheus.Collector, walking every slot in the
// array and emitting one sample set per slot.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for i := 0; i < c.array.NumSlots(); i++ {
		slot, err := c.array.Slot(i)
		if err != nil {
			continue
		}
		slotLabel := strconv.Itoa(i)

		ch <- prometheus.MustNewConstMetric(c.totalFileCounter, prometheus.GaugeValue, float64(slot.TotalFileCounter()), slotLabel)
		ch <- prometheus.MustNewConstMetric(c.totalFileSize, prometheus.GaugeValue, float64(slot.TotalFileSize()), slotLabel)
		ch <- prometheus.MustNewConstMetric(c.errorCounter, prometheus.GaugeValue, float64(slot.ErrorCounter()), slotLabel)
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(slot.Connections()), slotLabel)
		ch <- prometheus.MustNewConstMetric(c.connectStatus, prometheus.GaugeValue, float64(slot.ConnectStatus()), slotLabel)
	}
}
