// Package recommender orchestrates one recommendation cycle: cache
// lookup, rate-limiter gate, LLM request (or static fallback), parse,
// cache store. It is the single place that wires Sampler output to
// Filter Manager input by way of the LLM Client and Parser.
package recommender

import (
	"context"
	"flag"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grafana/telemetry-advisor/modules/llmclient"
	"github.com/grafana/telemetry-advisor/modules/parser"
	"github.com/grafana/telemetry-advisor/pkg/recommendation"
	"github.com/grafana/telemetry-advisor/pkg/signal"
)

// Config is the single options record spec.md §4.9 calls for: every
// sub-module's knob in one place so the Processor can build the whole
// pipeline from one parsed configuration.
type Config struct {
	APIKey           string        `yaml:"api_key"`
	MaxSampleSize    int           `yaml:"max_sample_size"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	CacheExpiration  time.Duration `yaml:"cache_expiration"`
	RateLimitRPM     int           `yaml:"rate_limit_rpm"`
	EnableCache      bool          `yaml:"enable_cache"`
	EnableRateLimit  bool          `yaml:"enable_rate_limit"`
	FallbackToStatic bool          `yaml:"fallback_to_static"`
	LogLevel         string        `yaml:"log_level"`
	PolicyFile       string        `yaml:"policy_file"`
}

// RegisterFlagsAndApplyDefaults registers Config's flags with defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.MaxSampleSize, prefix+"max-sample-size", 100, "maximum signals per drawn Sample")
	f.DurationVar(&c.SamplingInterval, prefix+"sampling-interval", 5*time.Minute, "interval between recommendation cycles")
	f.DurationVar(&c.CacheExpiration, prefix+"cache-expiration", time.Hour, "TTL for memoized recommendations")
	f.IntVar(&c.RateLimitRPM, prefix+"rate-limit-rpm", 60, "maximum LLM advisory requests per minute")
	f.BoolVar(&c.EnableCache, prefix+"enable-cache", true, "memoize recommendations by sample fingerprint")
	f.BoolVar(&c.EnableRateLimit, prefix+"enable-rate-limit", true, "gate LLM requests with a token bucket")
	f.BoolVar(&c.FallbackToStatic, prefix+"fallback-to-static", true, "fall back to the static rule set on transport error")
	f.StringVar(&c.LogLevel, prefix+"log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&c.PolicyFile, prefix+"policy-file", "", "path to the operator policy YAML document")
}

// cacher and limiter are the narrow interfaces Recommender needs from
// cache.Cache and ratelimit.Limiter, kept local so tests can stub them
// without importing those packages.
type cacher interface {
	Lookup(signal.Sample) (recommendation.ParsedRecommendations, bool)
	Store(signal.Sample, recommendation.ParsedRecommendations)
}

type limiter interface {
	Wait(ctx context.Context) error
}

type llmRecommender interface {
	Recommend(ctx context.Context, sampleJSON []byte, policySummaries []string) (string, error)
}

var metricFallback = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "telemetry_advisor",
	Subsystem: "recommender",
	Name:      "static_fallback_total",
	Help:      "Recommendation cycles that fell back to the static rule set after a transport error.",
})

var metricTransportErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "telemetry_advisor",
	Subsystem: "recommender",
	Name:      "transport_errors_total",
	Help:      "LLM transport errors encountered during recommendation cycles.",
})

// Recommender orchestrates one recommendation cycle.
type Recommender struct {
	cfg     Config
	client  llmRecommender
	cache   cacher
	limiter limiter
	logger  log.Logger
}

// New builds a Recommender. cache and rateLimiter may be nil iff the
// corresponding Config flag disables them.
func New(cfg Config, client llmRecommender, cache cacher, rateLimiter limiter, logger log.Logger) *Recommender {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Recommender{cfg: cfg, client: client, cache: cache, limiter: rateLimiter, logger: logger}
}

// Recommend runs one cycle for sample against policySummaries, following
// spec.md §4.9's pseudocode: cache check, rate-limiter gate, LLM request
// (or static fallback on transport error), parse, cache store.
func (r *Recommender) Recommend(ctx context.Context, sample signal.Sample, policySummaries []string) (recommendation.ParsedRecommendations, error) {
	if r.cfg.EnableCache && r.cache != nil {
		if hit, ok := r.cache.Lookup(sample); ok {
			return hit, nil
		}
	}

	if r.cfg.EnableRateLimit && r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return recommendation.ParsedRecommendations{}, err
		}
	}

	sampleJSON, err := sample.ToJSON()
	if err != nil {
		return recommendation.ParsedRecommendations{}, err
	}

	reply, err := r.client.Recommend(ctx, sampleJSON, policySummaries)
	var parsed recommendation.ParsedRecommendations
	if err != nil {
		metricTransportErrors.Inc()
		var te *llmclient.TransportError
		if !r.cfg.FallbackToStatic || !isTransportError(err, &te) {
			return recommendation.ParsedRecommendations{}, err
		}
		level.Warn(r.logger).Log("msg", "llm transport error, falling back to static recommendations", "err", err)
		metricFallback.Inc()
		parsed = staticFallback()
	} else {
		parsed, err = parser.Parse(reply)
		if err != nil {
			return recommendation.ParsedRecommendations{}, err
		}
	}

	if r.cfg.EnableCache && r.cache != nil {
		r.cache.Store(sample, parsed)
	}
	return parsed, nil
}

func isTransportError(err error, target **llmclient.TransportError) bool {
	for err != nil {
		if te, ok := err.(*llmclient.TransportError); ok {
			*target = te
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// staticFallback returns the fixed static recommendation set spec.md
// §4.9 mandates: at least drop-debug-logs and require-environment-label.
// Callers get a fresh copy each time since Recommendation.Rules is a
// slice that downstream code may later append InstalledAt to.
func staticFallback() recommendation.ParsedRecommendations {
	now := time.Now()
	recs := []recommendation.Recommendation{
		{
			ID:          "static-drop-debug-logs",
			Type:        recommendation.TypeDropSignal,
			Priority:    recommendation.PriorityLow,
			Description: "drop debug-level logs, which are high volume and rarely examined",
			Rationale:   "debug logs dominate ingest volume without corresponding diagnostic value",
			Rules: []recommendation.FilterRule{{
				Name:        "static-drop-debug-logs-rule",
				SignalType:  recommendation.SignalLog,
				Condition:   `attributes["level"] == "DEBUG"`,
				Action:      recommendation.ActionDrop,
				Description: "drop log entries at DEBUG level",
			}},
			EstimatedSavings: "10-20%",
			CreatedAt:        now,
		},
		{
			ID:          "static-require-environment-label",
			Type:        recommendation.TypeLabelPolicy,
			Priority:    recommendation.PriorityMedium,
			Description: "flag traces missing the required environment label",
			Rationale:   "missing environment labels block per-environment rollups and violate label policy",
			Rules: []recommendation.FilterRule{{
				Name:        "static-require-environment-label-rule",
				SignalType:  recommendation.SignalTrace,
				Condition:   `resource.attributes["environment"] == nil`,
				Action:      recommendation.ActionDrop,
				Description: "drop traces missing the environment resource attribute",
			}},
			EstimatedSavings: "Unknown",
			CreatedAt:        now,
		},
	}
	return recommendation.ParsedRecommendations{
		Recommendations: recs,
		Summary:         recommendation.Summarize(recs),
		GeneratedAt:     now,
	}
}
