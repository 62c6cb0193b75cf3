package gridcache

import "go.opentelemetry.io/otel/metric"

type cacheMetrics struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
}

func newCacheMetrics(meter metric.Meter) (*cacheMetrics, error) {
	hits, err := meter.Int64Counter(
		"gridcache.hits",
		metric.WithDescription("Tile reads served from the cache"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"gridcache.misses",
		metric.WithDescription("Tile reads that went to storage"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"gridcache.evictions",
		metric.WithDescription("Entries evicted to stay within the size bound"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &cacheMetrics{hits: hits, misses: misses, evictions: evictions}, nil
}
