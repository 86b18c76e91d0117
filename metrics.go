package poolman

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// collector exports manager stats as prometheus metrics.
type collector[H Heap] struct {
	manager *Manager[H]

	pools       *prometheus.Desc
	freeChunks  *prometheus.Desc
	totalChunks *prometheus.Desc
	headerSlabs *prometheus.Desc
	blockAllocs *prometheus.Desc
	blockFrees  *prometheus.Desc
	growEvents  *prometheus.Desc
	consolidate *prometheus.Desc
}

// NewCollector returns a prometheus.Collector over the manager's stats.
// The manager is not safe for concurrent use, so scrapes must be coordinated
// with the thread that owns it.
func NewCollector[H Heap](m *Manager[H]) prometheus.Collector {
	classLabel := []string{"class"}
	return &collector[H]{
		manager: m,
		pools: prometheus.NewDesc("poolman_pools",
			"Live pools per size class.", classLabel, nil),
		freeChunks: prometheus.NewDesc("poolman_free_chunks",
			"Free chunks per size class.", classLabel, nil),
		totalChunks: prometheus.NewDesc("poolman_total_chunks",
			"Chunk capacity per size class.", classLabel, nil),
		headerSlabs: prometheus.NewDesc("poolman_header_slabs",
			"Header slabs holding pool records.", nil, nil),
		blockAllocs: prometheus.NewDesc("poolman_heap_block_allocs_total",
			"Backing blocks requested from the heap.", nil, nil),
		blockFrees: prometheus.NewDesc("poolman_heap_block_frees_total",
			"Backing blocks returned to the heap.", nil, nil),
		growEvents: prometheus.NewDesc("poolman_grow_events_total",
			"Pool chain growth events.", nil, nil),
		consolidate: prometheus.NewDesc("poolman_consolidations_total",
			"Wholly free pools reclaimed.", nil, nil),
	}
}

func (c *collector[H]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pools
	ch <- c.freeChunks
	ch <- c.totalChunks
	ch <- c.headerSlabs
	ch <- c.blockAllocs
	ch <- c.blockFrees
	ch <- c.growEvents
	ch <- c.consolidate
}

func (c *collector[H]) Collect(ch chan<- prometheus.Metric) {
	var s Stats
	c.manager.UpdateStats(&s)

	for class := range s.Classes {
		label := strconv.Itoa(class)
		cs := &s.Classes[class]
		ch <- prometheus.MustNewConstMetric(c.pools, prometheus.GaugeValue, float64(cs.Pools), label)
		ch <- prometheus.MustNewConstMetric(c.freeChunks, prometheus.GaugeValue, float64(cs.FreeChunks), label)
		ch <- prometheus.MustNewConstMetric(c.totalChunks, prometheus.GaugeValue, float64(cs.TotalChunks), label)
	}
	ch <- prometheus.MustNewConstMetric(c.headerSlabs, prometheus.GaugeValue, float64(s.HeaderSlabs))
	ch <- prometheus.MustNewConstMetric(c.blockAllocs, prometheus.CounterValue, float64(s.HeapBlocksAllocated))
	ch <- prometheus.MustNewConstMetric(c.blockFrees, prometheus.CounterValue, float64(s.HeapBlocksFreed))
	ch <- prometheus.MustNewConstMetric(c.growEvents, prometheus.CounterValue, float64(s.GrowEvents))
	ch <- prometheus.MustNewConstMetric(c.consolidate, prometheus.CounterValue, float64(s.Consolidations))
}
