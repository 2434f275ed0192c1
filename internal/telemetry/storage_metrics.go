package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// StorageMetrics holds all the metric instruments for the buffer pool and
// B+ tree index.
type StorageMetrics struct {
	PageFetchCounter    metric.Int64Counter
	PageHitCounter      metric.Int64Counter
	PageMissCounter     metric.Int64Counter
	PageEvictionCounter metric.Int64Counter
	PinnedPagesGauge    metric.Int64UpDownCounter

	TreeSplitCounter     metric.Int64Counter
	TreeCoalesceCounter  metric.Int64Counter
	TreeOperationLatency metric.Int64Histogram
}

// NewStorageMetrics creates and registers all the metrics for the storage
// engine core.
func NewStorageMetrics(meter metric.Meter) (*StorageMetrics, error) {
	pageFetchCounter, err := meter.Int64Counter(
		"foliodb.bufferpool.fetch_total",
		metric.WithDescription("Total number of FetchPage calls."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pageHitCounter, err := meter.Int64Counter(
		"foliodb.bufferpool.hit_total",
		metric.WithDescription("Total number of FetchPage calls satisfied without a disk read."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pageMissCounter, err := meter.Int64Counter(
		"foliodb.bufferpool.miss_total",
		metric.WithDescription("Total number of FetchPage calls that required a disk read."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pageEvictionCounter, err := meter.Int64Counter(
		"foliodb.bufferpool.eviction_total",
		metric.WithDescription("Total number of frames evicted by the replacer."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pinnedPagesGauge, err := meter.Int64UpDownCounter(
		"foliodb.bufferpool.pinned_pages",
		metric.WithDescription("Current number of pinned frames."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	treeSplitCounter, err := meter.Int64Counter(
		"foliodb.btree.split_total",
		metric.WithDescription("Total number of leaf or internal page splits."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	treeCoalesceCounter, err := meter.Int64Counter(
		"foliodb.btree.coalesce_total",
		metric.WithDescription("Total number of coalesce (merge) operations; redistributions are not counted."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	treeOperationLatency, err := meter.Int64Histogram(
		"foliodb.btree.operation.duration",
		metric.WithDescription("Latency of Search/Insert/Delete tree operations."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	return &StorageMetrics{
		PageFetchCounter:     pageFetchCounter,
		PageHitCounter:       pageHitCounter,
		PageMissCounter:      pageMissCounter,
		PageEvictionCounter:  pageEvictionCounter,
		PinnedPagesGauge:     pinnedPagesGauge,
		TreeSplitCounter:     treeSplitCounter,
		TreeCoalesceCounter:  treeCoalesceCounter,
		TreeOperationLatency: treeOperationLatency,
	}, nil
}
