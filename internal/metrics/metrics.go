package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefeed_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefeed_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefeed_cache_stores_total",
		Help: "Total number of tiles written to the cache",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefeed_cache_evictions_total",
		Help: "Total number of tiles evicted from the cache",
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilefeed_cache_size",
		Help: "Number of tiles tracked by the cache",
	})

	ProviderFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefeed_provider_fetches_total",
		Help: "Total number of provider fetches by result",
	}, []string{"provider", "result"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilefeed_provider_latency_seconds",
		Help:    "Latency of provider fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	DuplicateFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefeed_provider_duplicate_fetches_total",
		Help: "Fetches absorbed because the same key was already in flight",
	}, []string{"provider"})

	CameraUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefeed_camera_updates_total",
		Help: "Total number of camera position updates",
	})

	TileChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefeed_tile_changes_total",
		Help: "Total number of camera moves into a new tile",
	})
)
