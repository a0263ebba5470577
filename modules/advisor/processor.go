// Package advisor assembles every sub-module into the pipeline-facing
// façade spec.md §4.10 calls the Processor: buffer arriving batches,
// filter them inline, and run a periodic recommendation loop that
// consults the Recommender and (optionally) installs its output.
//
// Lifecycle follows the teacher's services.NewBasicService(starting,
// running, stopping) shape, the same one BackendScheduler uses.
package advisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"

	"github.com/grafana/telemetry-advisor/modules/anonymizer"
	"github.com/grafana/telemetry-advisor/modules/cache"
	"github.com/grafana/telemetry-advisor/modules/filter"
	"github.com/grafana/telemetry-advisor/modules/llmclient"
	"github.com/grafana/telemetry-advisor/modules/policy"
	"github.com/grafana/telemetry-advisor/modules/ratelimit"
	"github.com/grafana/telemetry-advisor/modules/recommender"
	"github.com/grafana/telemetry-advisor/modules/sampler"
	"github.com/grafana/telemetry-advisor/pkg/recommendation"
	"github.com/grafana/telemetry-advisor/pkg/signal"
	advisorlog "github.com/grafana/telemetry-advisor/pkg/util/log"
)

var (
	metricTickSkippedOverrun = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_advisor",
		Subsystem: "advisor",
		Name:      "tick_skipped_overrun_total",
		Help:      "Recommendation ticks dropped because the previous cycle was still running.",
	})
	metricTickEmptySample = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_advisor",
		Subsystem: "advisor",
		Name:      "tick_empty_sample_total",
		Help:      "Recommendation ticks skipped because the drawn Sample was empty.",
	})
	metricCycleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_advisor",
		Subsystem: "advisor",
		Name:      "cycle_failures_total",
		Help:      "Recommendation cycles that returned an error.",
	})
)

// Processor is the pipeline-facing façade: the only type the ingestion
// layer talks to.
type Processor struct {
	services.Service

	cfg    Config
	logger log.Logger

	anon        *anonymizer.Anonymizer
	sampler     *sampler.Sampler
	client      *llmclient.Client
	cache       *cache.Cache
	rateLimiter *ratelimit.Limiter
	policies    *policy.Manager
	filters     *filter.Manager
	recommender *recommender.Recommender

	running   atomic.Bool
	latest    atomic.Pointer[recommendation.ParsedRecommendations]
	tickMutex sync.Mutex

	tickSkipLogger *advisorlog.RateLimited

	stop chan struct{}
}

// tickSkipLogsPerSecond bounds the "tick skipped" warning: an overrunning
// recommendation cycle fires this on every tick of the interval until it
// finishes, which can be sub-minute under a misconfigured sampling_interval.
const tickSkipLogsPerSecond = 1

// New assembles a Processor from cfg. It does not start any background
// work; start the embedded service (e.g. services.StartAndAwaitRunning)
// for that.
func New(cfg Config) (*Processor, error) {
	logger := advisorlog.New(cfg.logLevel())

	policies, err := policy.Load(cfg.Policy, logger)
	if err != nil {
		return nil, fmt.Errorf("load policy file: %w", err)
	}

	anon := anonymizer.New()
	p := &Processor{
		cfg:            cfg,
		logger:         logger,
		anon:           anon,
		sampler:        sampler.New(cfg.Sampler, anon),
		client:         llmclient.New(cfg.LLM),
		cache:          cache.New(cfg.Cache),
		rateLimiter:    ratelimit.New(cfg.RateLimit),
		policies:       policies,
		filters:        filter.New(cfg.Filter, logger),
		tickSkipLogger: advisorlog.NewRateLimited(tickSkipLogsPerSecond, logger),
		stop:           make(chan struct{}),
	}
	p.recommender = recommender.New(
		recommender.Config{
			APIKey:           cfg.LLM.APIKey,
			MaxSampleSize:    cfg.Sampler.MaxSampleSize,
			SamplingInterval: cfg.Recommender.SamplingInterval,
			CacheExpiration:  cfg.Cache.Expiration,
			RateLimitRPM:     cfg.RateLimit.RequestsPerMinute,
			EnableCache:      cfg.Recommender.EnableCache,
			EnableRateLimit:  cfg.Recommender.EnableRateLimit,
			FallbackToStatic: cfg.Recommender.FallbackToStatic,
			LogLevel:         cfg.LogLevel,
			PolicyFile:       cfg.Policy.PolicyFile,
		},
		p.client, p.cache, p.rateLimiter, logger,
	)
	empty := recommendation.ParsedRecommendations{}
	p.latest.Store(&empty)

	p.Service = services.NewBasicService(p.starting, p.runningLoop, p.stopping)
	return p, nil
}

// starting performs the LLM connectivity probe spec.md §4.10 requires;
// if it fails and fallback is disabled, start fails outright.
func (p *Processor) starting(ctx context.Context) error {
	if err := p.client.ValidateConnection(ctx); err != nil {
		if !p.cfg.Recommender.FallbackToStatic {
			return fmt.Errorf("llm connectivity probe failed and fallback_to_static is disabled: %w", err)
		}
		level.Warn(p.logger).Log("msg", "llm connectivity probe failed, continuing with static fallback available", "err", err)
	}
	return nil
}

// runningLoop launches the three cooperative background tasks and blocks
// until ctx is cancelled.
func (p *Processor) runningLoop(ctx context.Context) error {
	level.Info(p.logger).Log("msg", "telemetry advisor running")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.recommendationLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.policies.Watch(ctx.Done())
	}()

	if p.cfg.MetricsEnabled && p.cfg.MetricsInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.metricsExporter(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (p *Processor) stopping(_ error) error {
	close(p.stop)
	level.Info(p.logger).Log("msg", "telemetry advisor stopped")
	return nil
}

// recommendationLoop ticks every SamplingInterval, skipping a tick if the
// previous cycle is still in flight (spec.md §4.10, §5).
func (p *Processor) recommendationLoop(ctx context.Context) {
	interval := p.cfg.Recommender.SamplingInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	if !p.tickMutex.TryLock() {
		metricTickSkippedOverrun.Inc()
		_ = p.tickSkipLogger.Log("msg", "recommendation tick skipped, previous cycle still running")
		return
	}
	defer p.tickMutex.Unlock()

	sample := p.sampler.Draw()
	if sample.Empty() {
		metricTickEmptySample.Inc()
		return
	}

	policies := p.policies.Current()
	summaries := policy.Summaries(policies)

	parsed, err := p.recommender.Recommend(ctx, sample, summaries)
	if err != nil {
		metricCycleFailures.Inc()
		level.Warn(p.logger).Log("msg", "recommendation cycle failed", "err", err)
		return
	}

	p.latest.Store(&parsed)

	if p.cfg.AutoApplyFilters {
		p.filters.Install(parsed.AllRules())
	}
	if p.cfg.Filter.TTL > 0 {
		p.filters.ExpireOlderThan(time.Now())
	}
}

func (p *Processor) metricsExporter(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			level.Debug(p.logger).Log("msg", "self-observability snapshot",
				"active_rules", p.filters.Len(), "cache_entries", p.cache.Len())
		}
	}
}

// GetActiveRecommendations returns the most recently computed
// ParsedRecommendations snapshot.
func (p *Processor) GetActiveRecommendations() recommendation.ParsedRecommendations {
	return *p.latest.Load()
}

// ProcessTraces buffers traces into the Sampler and returns the subset the
// Filter Manager does not drop, in arrival order. Never blocks on the LLM.
func (p *Processor) ProcessTraces(traces []signal.TraceSpan) []signal.TraceSpan {
	p.sampler.BufferTraces(traces)
	return p.filters.FilterTraces(traces)
}

// ProcessMetrics buffers metrics into the Sampler and returns survivors.
func (p *Processor) ProcessMetrics(metrics []signal.MetricDataPoint) []signal.MetricDataPoint {
	p.sampler.BufferMetrics(metrics)
	return p.filters.FilterMetrics(metrics)
}

// ProcessLogs buffers logs into the Sampler and returns survivors.
func (p *Processor) ProcessLogs(logs []signal.LogEntry) []signal.LogEntry {
	p.sampler.BufferLogs(logs)
	return p.filters.FilterLogs(logs)
}

// Filters exposes the Filter Manager to callers holding the Processor.
func (p *Processor) Filters() *filter.Manager { return p.filters }

// Policies exposes the Policy Manager to callers holding the Processor.
func (p *Processor) Policies() *policy.Manager { return p.policies }
