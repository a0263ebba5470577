// Package policy loads, validates and hot-reloads the operator-supplied
// label-policy document, exposing an immutable snapshot to the rest of
// the system. The current snapshot is an atomically-replaced pointer
// (go.uber.org/atomic), the same pattern the teacher uses for its
// "active-recommendations" style single-pointer state.
package policy

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Enforcement is the disposition a Policy declares for violations.
// spec.md §9 leaves warn/fix semantics to the implementer beyond "not
// dropped" — only Drop is observable on the data path today; see
// DESIGN.md "Open Questions".
type Enforcement string

const (
	EnforcementDrop Enforcement = "drop"
	EnforcementWarn Enforcement = "warn"
	EnforcementFix  Enforcement = "fix"
)

// Policy is one operator-declared label constraint. Policies are
// read-only once loaded.
type Policy struct {
	Name            string      `yaml:"name"`
	RequiredLabels  []string    `yaml:"required_labels"`
	ForbiddenLabels []string    `yaml:"forbidden_labels"`
	LabelPatterns   []string    `yaml:"label_patterns"`
	Enforcement     Enforcement `yaml:"enforcement"`

	compiledPatterns []*regexp.Regexp
}

// document is the top-level shape of the policy YAML file. Global and
// CustomRules are accepted and preserved but not interpreted by the core
// (spec.md §6: "unknown keys must not cause rejection").
type document struct {
	Policies    []Policy    `yaml:"policies"`
	Global      interface{} `yaml:"global"`
	CustomRules interface{} `yaml:"custom_rules"`
}

func (p *Policy) validate() error {
	var errs error
	if p.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("policy name must not be empty"))
	}
	switch p.Enforcement {
	case EnforcementDrop, EnforcementWarn, EnforcementFix:
	default:
		errs = multierr.Append(errs, fmt.Errorf("policy %q: invalid enforcement %q", p.Name, p.Enforcement))
	}
	for _, pat := range p.LabelPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("policy %q: invalid label pattern %q: %w", p.Name, pat, err))
			continue
		}
		p.compiledPatterns = append(p.compiledPatterns, re)
	}
	return errs
}

// Config names the policy file and the hot-reload poll interval.
type Config struct {
	PolicyFile     string        `yaml:"policy_file"`
	ReloadInterval time.Duration `yaml:"-"`
}

// RegisterFlagsAndApplyDefaults registers Config's flags with defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.PolicyFile, prefix+"policy-file", "", "path to the operator policy YAML document")
	c.ReloadInterval = 5 * time.Minute
}

// Manager owns the current Policy snapshot and reloads it when the
// backing file's modification time advances.
type Manager struct {
	cfg    Config
	logger log.Logger

	current atomic.Pointer[[]Policy]
	modTime atomic.Time
}

// Load reads and validates cfg.PolicyFile once, returning a ready Manager.
// An empty PolicyFile is valid and yields an empty policy set — the core
// has no operator-mandated policies until one is supplied.
func Load(cfg Config, logger log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	m := &Manager{cfg: cfg, logger: logger}
	if cfg.PolicyFile == "" {
		empty := []Policy{}
		m.current.Store(&empty)
		return m, nil
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) reload() error {
	info, err := os.Stat(m.cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("stat policy file: %w", err)
	}

	raw, err := os.ReadFile(m.cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}

	var errs error
	for i := range doc.Policies {
		if err := doc.Policies[i].validate(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return fmt.Errorf("invalid policy document: %w", errs)
	}

	m.current.Store(&doc.Policies)
	m.modTime.Store(info.ModTime())
	return nil
}

// Current returns a deep-copied, immutable snapshot of the active policy
// set.
func (m *Manager) Current() []Policy {
	p := m.current.Load()
	if p == nil {
		return nil
	}
	out := make([]Policy, len(*p))
	for i, pol := range *p {
		pol.RequiredLabels = append([]string(nil), pol.RequiredLabels...)
		pol.ForbiddenLabels = append([]string(nil), pol.ForbiddenLabels...)
		pol.LabelPatterns = append([]string(nil), pol.LabelPatterns...)
		pol.compiledPatterns = append([]*regexp.Regexp(nil), pol.compiledPatterns...)
		out[i] = pol
	}
	return out
}

// CheckReload reloads the policy file if its modification time has
// advanced since the last successful load. Reload is atomic: either the
// new document wholesale replaces the old, or validation/IO fails and the
// old snapshot is kept with a warning logged (spec.md §7).
func (m *Manager) CheckReload() {
	if m.cfg.PolicyFile == "" {
		return
	}
	info, err := os.Stat(m.cfg.PolicyFile)
	if err != nil {
		level.Warn(m.logger).Log("msg", "policy reload: stat failed, keeping previous snapshot", "err", err)
		return
	}
	if !info.ModTime().After(m.modTime.Load()) {
		return
	}
	if err := m.reload(); err != nil {
		level.Warn(m.logger).Log("msg", "policy reload failed, keeping previous snapshot", "err", err)
	}
}

// Watch runs CheckReload on cfg.ReloadInterval until stop is closed.
// Callers that only need a point-in-time load (e.g. the dry-run CLI) do
// not call Watch.
func (m *Manager) Watch(stop <-chan struct{}) {
	interval := m.cfg.ReloadInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.CheckReload()
		}
	}
}

// Summaries renders each policy as the one-line text handed to the LLM
// prompt: name, required/forbidden labels, patterns, enforcement.
func Summaries(policies []Policy) []string {
	out := make([]string, 0, len(policies))
	for _, p := range policies {
		out = append(out, fmt.Sprintf(
			"%s: required=%v forbidden=%v patterns=%v enforcement=%s",
			p.Name, p.RequiredLabels, p.ForbiddenLabels, p.LabelPatterns, p.Enforcement,
		))
	}
	return out
}
