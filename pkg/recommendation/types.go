// Package recommendation holds the shared data model produced by the
// Parser, memoized by the Cache, and consumed by the Filter Manager: typed
// Recommendations carrying FilterRules, and the aggregate Summary.
package recommendation

import "time"

// Type classifies a Recommendation.
type Type string

const (
	TypeDropSignal     Type = "drop_signal"
	TypeLabelPolicy    Type = "label_policy"
	TypeNoiseReduction Type = "noise_reduction"
	TypeOptimization   Type = "optimization"
)

// Priority orders Recommendations for operator attention.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// SignalType names which of the three Signal kinds a FilterRule targets.
type SignalType string

const (
	SignalTrace  SignalType = "trace"
	SignalMetric SignalType = "metric"
	SignalLog    SignalType = "log"
)

// Action names what a FilterRule does when its condition matches. Drop is
// the only action with observable semantics on the data path today.
type Action string

const (
	ActionDrop Action = "drop"
)

// FilterRule is a named, typed condition the Filter Manager can install
// and evaluate against a single Signal.
type FilterRule struct {
	Name        string     `json:"name" yaml:"name"`
	SignalType  SignalType `json:"signal_type" yaml:"signal_type"`
	Condition   string     `json:"condition" yaml:"condition"`
	Action      Action     `json:"action" yaml:"action"`
	Description string     `json:"description" yaml:"description"`
	InstalledAt time.Time  `json:"installed_at,omitempty" yaml:"-"`
}

// Recommendation is one typed suggestion surfaced by the Parser, carrying
// zero or more FilterRules.
type Recommendation struct {
	ID               string       `json:"id"`
	Type             Type         `json:"type"`
	Priority         Priority     `json:"priority"`
	Description      string       `json:"description"`
	Rationale        string       `json:"rationale"`
	Rules            []FilterRule `json:"rules"`
	EstimatedSavings string       `json:"estimated_saving"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Summary aggregates counts across a set of Recommendations.
type Summary struct {
	Total            int              `json:"total"`
	ByType           map[Type]int     `json:"by_type"`
	ByPriority       map[Priority]int `json:"by_priority"`
	EstimatedSavings string           `json:"estimated_savings"`
}

// ParsedRecommendations bundles the Recommendations produced by one parse
// or one fallback with their aggregate Summary. UnattachedRules holds
// FilterRules the Parser could not attribute to any Recommendation by word
// overlap; they still install on the data path, just without a parent
// Recommendation to group under in the status page.
type ParsedRecommendations struct {
	Recommendations []Recommendation `json:"recommendations"`
	UnattachedRules []FilterRule     `json:"unattached_rules,omitempty"`
	Summary         Summary          `json:"summary"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Summarize computes the Summary for a set of Recommendations.
// EstimatedSavings defaults to "Unknown" when recs carries no explicit
// savings figure that can be aggregated.
func Summarize(recs []Recommendation) Summary {
	s := Summary{
		Total:      len(recs),
		ByType:     map[Type]int{},
		ByPriority: map[Priority]int{},
	}
	savings := "Unknown"
	for _, r := range recs {
		s.ByType[r.Type]++
		s.ByPriority[r.Priority]++
		if r.EstimatedSavings != "" && savings == "Unknown" {
			savings = r.EstimatedSavings
		}
	}
	s.EstimatedSavings = savings
	return s
}

// AllRules flattens the FilterRules of every Recommendation plus
// UnattachedRules, preserving order. This is what the Processor's
// auto-apply path installs wholesale.
func (p ParsedRecommendations) AllRules() []FilterRule {
	var out []FilterRule
	for _, r := range p.Recommendations {
		out = append(out, r.Rules...)
	}
	out = append(out, p.UnattachedRules...)
	return out
}
