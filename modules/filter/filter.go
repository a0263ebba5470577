// Package filter owns the active FilterRule set and evaluates Signals
// against it on the data path. Installation/clear are writer operations
// serialized against readers with a sync.RWMutex (read-mostly, per
// spec.md §5).
package filter

import (
	"flag"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grafana/telemetry-advisor/pkg/recommendation"
	"github.com/grafana/telemetry-advisor/pkg/signal"
	advisorlog "github.com/grafana/telemetry-advisor/pkg/util/log"
)

// unsupportedConditionLogsPerSecond bounds how often the "unsupported
// condition" warning can log; rule evaluation runs on every Signal, so an
// unthrottled logger would flood stderr the moment one bad rule installs.
const unsupportedConditionLogsPerSecond = 1

// Config bounds the active rule set and optionally expires rules by TTL.
type Config struct {
	MaxRules int           `yaml:"max_filter_rules"`
	TTL      time.Duration `yaml:"filter_timeout"` // zero disables TTL expiry
}

// RegisterFlagsAndApplyDefaults registers Config's flags with defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.MaxRules, prefix+"max-filter-rules", 100, "maximum number of active filter rules")
	f.DurationVar(&c.TTL, prefix+"filter-timeout", 0, "optional TTL after which installed rules expire (0 disables)")
}

var (
	metricInstallSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_advisor",
		Subsystem: "filter",
		Name:      "install_skipped_total",
		Help:      "Rules skipped at install time due to a duplicate name or the active-rule cap.",
	})
	metricUnsupportedConditionMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_advisor",
		Subsystem: "filter",
		Name:      "unsupported_condition_total",
		Help:      "Evaluations against a rule whose condition shape is unsupported (fails closed, signal kept).",
	})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_advisor",
		Subsystem: "filter",
		Name:      "signals_dropped_total",
		Help:      "Signals dropped because some installed rule matched.",
	})
)

type installedRule struct {
	rule      recommendation.FilterRule
	condition condition
}

// Manager holds the active rule set.
type Manager struct {
	cfg Config

	mu    sync.RWMutex
	rules []installedRule
	names map[string]struct{}

	warnLogger *advisorlog.RateLimited
}

// New builds an empty Manager. logger may be nil, in which case
// unsupported-condition warnings are discarded (tests construct Managers
// this way and only assert on the counter).
func New(cfg Config, logger log.Logger) *Manager {
	if cfg.MaxRules <= 0 {
		cfg.MaxRules = 100
	}
	if logger == nil {
		logger = advisorlog.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		names:      make(map[string]struct{}),
		warnLogger: advisorlog.NewRateLimited(unsupportedConditionLogsPerSecond, logger),
	}
}

// Install admits each rule whose name is not already installed and whose
// admission would not exceed MaxRules; others are silently skipped and
// counted. Installation is atomic with respect to readers: Evaluate never
// observes a half-installed batch.
func (m *Manager) Install(rules []recommendation.FilterRule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, r := range rules {
		if _, exists := m.names[r.Name]; exists {
			metricInstallSkipped.Inc()
			continue
		}
		if len(m.rules) >= m.cfg.MaxRules {
			metricInstallSkipped.Inc()
			continue
		}
		if r.InstalledAt.IsZero() {
			r.InstalledAt = now
		}
		m.names[r.Name] = struct{}{}
		m.rules = append(m.rules, installedRule{rule: r, condition: compileCondition(r.Condition)})
	}
}

// Clear empties the active set and its name index.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = nil
	m.names = make(map[string]struct{})
}

// ExpireOlderThan removes installed rules whose InstalledAt predates the
// configured TTL. A no-op when TTL is zero (TTL-based expiry disabled).
func (m *Manager) ExpireOlderThan(now time.Time) {
	if m.cfg.TTL <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rules[:0]
	for _, ir := range m.rules {
		if now.Sub(ir.rule.InstalledAt) > m.cfg.TTL {
			delete(m.names, ir.rule.Name)
			continue
		}
		kept = append(kept, ir)
	}
	m.rules = kept
}

// Active returns a snapshot of the currently installed rules.
func (m *Manager) Active() []recommendation.FilterRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]recommendation.FilterRule, len(m.rules))
	for i, ir := range m.rules {
		out[i] = ir.rule
	}
	return out
}

// Len reports the number of active rules.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// evaluate reports whether any installed rule of the given signal type
// matches s, counting unsupported-condition matches-attempts separately
// so operators can see unused rules.
func (m *Manager) evaluate(st recommendation.SignalType, s attrSignal) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dropped := false
	for _, ir := range m.rules {
		if ir.rule.SignalType != st {
			continue
		}
		if ir.condition.kind == condUnsupported {
			metricUnsupportedConditionMatched.Inc()
			_ = m.warnLogger.Log("msg", "unsupported filter condition, failing closed (signal kept)", "rule", ir.rule.Name, "condition", ir.rule.Condition)
			continue
		}
		if ir.condition.matches(s) {
			dropped = true
		}
	}
	return dropped
}

// FilterTraces returns the subset of traces that survive, preserving
// arrival order.
func (m *Manager) FilterTraces(traces []signal.TraceSpan) []signal.TraceSpan {
	out := make([]signal.TraceSpan, 0, len(traces))
	for _, t := range traces {
		if m.evaluate(recommendation.SignalTrace, t) {
			metricDropped.Inc()
			continue
		}
		out = append(out, t)
	}
	return out
}

// FilterMetrics returns the subset of metrics that survive, preserving
// arrival order.
func (m *Manager) FilterMetrics(metrics []signal.MetricDataPoint) []signal.MetricDataPoint {
	out := make([]signal.MetricDataPoint, 0, len(metrics))
	for _, d := range metrics {
		if m.evaluate(recommendation.SignalMetric, d) {
			metricDropped.Inc()
			continue
		}
		out = append(out, d)
	}
	return out
}

// FilterLogs returns the subset of logs that survive, preserving arrival
// order.
func (m *Manager) FilterLogs(logs []signal.LogEntry) []signal.LogEntry {
	out := make([]signal.LogEntry, 0, len(logs))
	for _, l := range logs {
		if m.evaluate(recommendation.SignalLog, l) {
			metricDropped.Inc()
			continue
		}
		out = append(out, l)
	}
	return out
}
