// Package sampler holds a bounded in-memory buffer of recent telemetry and,
// on demand, draws a uniform random sub-sample through the Anonymizer.
package sampler

import (
	"flag"
	"math/rand"
	"sync"
	"time"

	"github.com/grafana/telemetry-advisor/modules/anonymizer"
	"github.com/grafana/telemetry-advisor/pkg/signal"
)

// Config controls the Sampler's buffer sizing.
type Config struct {
	MaxSampleSize int `yaml:"max_sample_size"`
}

// RegisterFlagsAndApplyDefaults wires Config into a flag.FlagSet the way
// every teacher module.Config does.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.MaxSampleSize, prefix+"max-sample-size", 100, "maximum number of signals of each kind drawn into a Sample")
}

func (c Config) bufferCap() int {
	return c.MaxSampleSize * 10
}

// Sampler buffers recent TraceSpans, MetricDataPoints and LogEntrys and
// draws anonymized Samples from them.
type Sampler struct {
	cfg  Config
	anon *anonymizer.Anonymizer

	mu      sync.Mutex
	traces  *ring[signal.TraceSpan]
	metrics *ring[signal.MetricDataPoint]
	logs    *ring[signal.LogEntry]

	// seed, if set, makes draws deterministic for tests. Nil means seed
	// per-call from wall-clock time, as spec.md §4.2 requires.
	seed *int64
}

// Option configures a Sampler at construction.
type Option func(*Sampler)

// WithSeed pins the per-draw RNG seed, for deterministic tests.
func WithSeed(seed int64) Option {
	return func(s *Sampler) { s.seed = &seed }
}

// New builds a Sampler with the given config and anonymizer.
func New(cfg Config, anon *anonymizer.Anonymizer, opts ...Option) *Sampler {
	if cfg.MaxSampleSize <= 0 {
		cfg.MaxSampleSize = 100
	}
	s := &Sampler{
		cfg:     cfg,
		anon:    anon,
		traces:  newRing[signal.TraceSpan](cfg.bufferCap()),
		metrics: newRing[signal.MetricDataPoint](cfg.bufferCap()),
		logs:    newRing[signal.LogEntry](cfg.bufferCap()),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BufferTraces appends traces to the buffer, evicting the oldest entries
// in arrival order once the cap is exceeded.
func (s *Sampler) BufferTraces(traces []signal.TraceSpan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces.push(traces)
}

// BufferMetrics appends metrics to the buffer.
func (s *Sampler) BufferMetrics(metrics []signal.MetricDataPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.push(metrics)
}

// BufferLogs appends logs to the buffer.
func (s *Sampler) BufferLogs(logs []signal.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs.push(logs)
}

func (s *Sampler) rng() *rand.Rand {
	seed := time.Now().UnixNano()
	if s.seed != nil {
		seed = *s.seed
	}
	return rand.New(rand.NewSource(seed))
}

// Draw takes a consistent snapshot of the buffers, draws up to
// MaxSampleSize of each kind uniformly at random without replacement, and
// returns them anonymized as a Sample. Draw never fails; an empty buffer
// yields an empty Sample and callers are expected to skip the tick.
func (s *Sampler) Draw() signal.Sample {
	s.mu.Lock()
	traces := s.traces.snapshot()
	metrics := s.metrics.snapshot()
	logs := s.logs.snapshot()
	s.mu.Unlock()

	rng := s.rng()
	sampledTraces := drawN(rng, traces, s.cfg.MaxSampleSize)
	sampledMetrics := drawN(rng, metrics, s.cfg.MaxSampleSize)
	sampledLogs := drawN(rng, logs, s.cfg.MaxSampleSize)

	return s.assemble(sampledTraces, sampledMetrics, sampledLogs, len(traces), len(metrics), len(logs))
}

// CreateSample is the one-shot convenience: sample each kind
// independently from the given slices (ignoring the live buffers),
// union the observed services, and stamp metadata.
func (s *Sampler) CreateSample(traces []signal.TraceSpan, metrics []signal.MetricDataPoint, logs []signal.LogEntry) signal.Sample {
	rng := s.rng()
	sampledTraces := drawN(rng, traces, s.cfg.MaxSampleSize)
	sampledMetrics := drawN(rng, metrics, s.cfg.MaxSampleSize)
	sampledLogs := drawN(rng, logs, s.cfg.MaxSampleSize)

	return s.assemble(sampledTraces, sampledMetrics, sampledLogs, len(traces), len(metrics), len(logs))
}

func (s *Sampler) assemble(traces []signal.TraceSpan, metrics []signal.MetricDataPoint, logs []signal.LogEntry, totalTraces, totalMetrics, totalLogs int) signal.Sample {
	services := map[string]struct{}{}
	for i, t := range traces {
		traces[i] = s.anon.Trace(t)
		if traces[i].Service != "" {
			services[traces[i].Service] = struct{}{}
		}
	}
	for i, m := range metrics {
		metrics[i] = s.anon.Metric(m)
	}
	for i, l := range logs {
		logs[i] = s.anon.Log(l)
		if logs[i].Service != "" {
			services[logs[i].Service] = struct{}{}
		}
	}

	svcList := make([]string, 0, len(services))
	for svc := range services {
		svcList = append(svcList, svc)
	}

	return signal.Sample{
		Traces:  traces,
		Metrics: metrics,
		Logs:    logs,
		Metadata: signal.SampleMetadata{
			TotalTraces:  totalTraces,
			TotalMetrics: totalMetrics,
			TotalLogs:    totalLogs,
			Services:     svcList,
			SampledAt:    time.Now(),
			TimeRange:    "recent",
		},
	}
}
