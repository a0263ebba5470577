package advisor

import (
	"flag"
	"time"

	"github.com/grafana/telemetry-advisor/modules/cache"
	"github.com/grafana/telemetry-advisor/modules/filter"
	"github.com/grafana/telemetry-advisor/modules/llmclient"
	"github.com/grafana/telemetry-advisor/modules/policy"
	"github.com/grafana/telemetry-advisor/modules/ratelimit"
	"github.com/grafana/telemetry-advisor/modules/recommender"
	"github.com/grafana/telemetry-advisor/modules/sampler"
	"github.com/grafana/telemetry-advisor/pkg/util/log"
)

// Config composes every sub-module's Config into the single options
// record spec.md §4.9 calls for, the way cmd/tempo/app/config.go composes
// distributor.Config, overrides.Config and the rest into one App config.
type Config struct {
	Sampler     sampler.Config     `yaml:",inline"`
	LLM         llmclient.Config   `yaml:",inline"`
	Cache       cache.Config       `yaml:",inline"`
	RateLimit   ratelimit.Config   `yaml:",inline"`
	Policy      policy.Config      `yaml:",inline"`
	Filter      filter.Config      `yaml:",inline"`
	Recommender recommender.Config `yaml:",inline"`

	LogLevel string `yaml:"log_level"`

	AutoApplyFilters bool `yaml:"auto_apply_filters"`
	MetricsEnabled   bool `yaml:"metrics_enabled"`

	MetricsInterval time.Duration `yaml:"metrics_interval"`

	// ListenAddr, if non-empty, serves the self-observability HTTP
	// endpoint (GET /status, GET /metrics). Empty disables it regardless
	// of MetricsEnabled.
	ListenAddr string `yaml:"listen_addr"`
}

// RegisterFlagsAndApplyDefaults registers every sub-module's flags under
// prefix, plus the Processor's own knobs. Of the Recommender's flags only
// its own knobs are registered: its sample-size, cache, rate-limit,
// policy-file and log-level flags share names with flags registered here,
// and New takes those values from the other sub-module configs.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.Sampler.RegisterFlagsAndApplyDefaults(prefix, f)
	c.LLM.RegisterFlagsAndApplyDefaults(prefix, f)
	c.Cache.RegisterFlagsAndApplyDefaults(prefix, f)
	c.RateLimit.RegisterFlagsAndApplyDefaults(prefix, f)
	c.Policy.RegisterFlagsAndApplyDefaults(prefix, f)
	c.Filter.RegisterFlagsAndApplyDefaults(prefix, f)
	f.DurationVar(&c.Recommender.SamplingInterval, prefix+"sampling-interval", 5*time.Minute, "interval between recommendation cycles")
	f.BoolVar(&c.Recommender.EnableCache, prefix+"enable-cache", true, "memoize recommendations by sample fingerprint")
	f.BoolVar(&c.Recommender.EnableRateLimit, prefix+"enable-rate-limit", true, "gate LLM requests with a token bucket")
	f.BoolVar(&c.Recommender.FallbackToStatic, prefix+"fallback-to-static", true, "fall back to the static rule set on transport error")

	f.StringVar(&c.LogLevel, prefix+"log-level", "info", "log level: debug, info, warn, error")
	f.BoolVar(&c.AutoApplyFilters, prefix+"auto-apply-filters", true, "install recommended filter rules automatically each cycle")
	f.BoolVar(&c.MetricsEnabled, prefix+"metrics-enabled", true, "serve the self-observability HTTP endpoint")
	f.DurationVar(&c.MetricsInterval, prefix+"metrics-interval", time.Minute, "interval for periodic self-observability logging")
	f.StringVar(&c.ListenAddr, prefix+"listen-addr", "", "address for the self-observability HTTP endpoint (empty disables it)")
}

func (c Config) logLevel() log.Level {
	switch c.LogLevel {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
