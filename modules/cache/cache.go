// Package cache memoizes ParsedRecommendations by Sample fingerprint with
// a TTL. It is built on hashicorp/golang-lru/v2/expirable, which already
// gives per-entry TTL eviction and single-lock concurrency; Cache adds the
// fingerprint-only keying spec.md §4.5 requires (so no attribute value or
// service name is ever retained) and the prometheus hit/miss counters.
package cache

import (
	"flag"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grafana/telemetry-advisor/pkg/recommendation"
	"github.com/grafana/telemetry-advisor/pkg/signal"
)

// Config controls the cache TTL.
type Config struct {
	Expiration time.Duration `yaml:"cache_expiration"`
}

// RegisterFlagsAndApplyDefaults registers Config's flags with defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&c.Expiration, prefix+"cache-expiration", time.Hour, "TTL for memoized recommendations")
}

var (
	metricHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_advisor",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Number of recommendation cache hits.",
	})
	metricMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_advisor",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Number of recommendation cache misses.",
	})
)

// Cache memoizes recommendations by the three-count Sample fingerprint.
type Cache struct {
	lru *lru.LRU[uint64, recommendation.ParsedRecommendations]
}

// New builds a Cache with the given TTL. Size is unbounded — TTL alone
// governs eviction, per spec.md §4.5 ("entries are dropped once age >
// expiration"); the fingerprint keyspace is small regardless since it is
// only three integer counts.
func New(cfg Config) *Cache {
	ttl := cfg.Expiration
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{lru: lru.NewLRU[uint64, recommendation.ParsedRecommendations](0, nil, ttl)}
}

// Lookup returns the memoized ParsedRecommendations for sample's
// fingerprint, if present and not yet expired.
func (c *Cache) Lookup(sample signal.Sample) (recommendation.ParsedRecommendations, bool) {
	v, ok := c.lru.Get(sample.Metadata.Fingerprint())
	if ok {
		metricHits.Inc()
	} else {
		metricMisses.Inc()
	}
	return v, ok
}

// Store memoizes rec under sample's fingerprint.
func (c *Cache) Store(sample signal.Sample, rec recommendation.ParsedRecommendations) {
	c.lru.Add(sample.Metadata.Fingerprint(), rec)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len reports the number of live entries, for tests and status reporting.
func (c *Cache) Len() int {
	return c.lru.Len()
}
