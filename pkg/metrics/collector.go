// Package metrics exposes PageManager state as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"vpager/pkg/manager"
)

const namespace = "vpager"

// Snapshotter is satisfied by *manager.PageManager; narrowed to an
// interface so the collector can be tested against a fake.
type Snapshotter interface {
	Snapshot() manager.Stats
}

// Collector adapts a PageManager's Snapshot into the prometheus.Collector
// interface for registration with a registry or the default handler.
type Collector struct {
	pm Snapshotter

	totalAllocatedPages *prometheus.Desc
	lastUsedPage        *prometheus.Desc
	versionNumber       *prometheus.Desc
	recycledPageCount   *prometheus.Desc
}

// NewCollector returns a Collector reporting pm's state on every scrape.
func NewCollector(pm Snapshotter) *Collector {
	return &Collector{
		pm: pm,
		totalAllocatedPages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "total_allocated_pages"),
			"Fixed page capacity of the store.", nil, nil,
		),
		lastUsedPage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "last_used_page"),
			"High-water mark of the most recently allocated fresh page.", nil, nil,
		),
		versionNumber: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "version_number"),
			"Number of successful consolidate_state commits, including bootstrap.", nil, nil,
		),
		recycledPageCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "recycled_page_count"),
			"Number of pages currently available for reuse in the in-memory recycled buffer.", nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalAllocatedPages
	ch <- c.lastUsedPage
	ch <- c.versionNumber
	ch <- c.recycledPageCount
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.pm.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.totalAllocatedPages, prometheus.GaugeValue, float64(snap.TotalAllocatedPages))
	ch <- prometheus.MustNewConstMetric(c.lastUsedPage, prometheus.GaugeValue, float64(snap.LastUsedPage))
	ch <- prometheus.MustNewConstMetric(c.versionNumber, prometheus.CounterValue, float64(snap.VersionNumber))
	ch <- prometheus.MustNewConstMetric(c.recycledPageCount, prometheus.GaugeValue, float64(snap.RecycledPageCount))
}
