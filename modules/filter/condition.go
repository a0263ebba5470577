package filter

import (
	"regexp"

	"github.com/grafana/telemetry-advisor/pkg/signal"
)

// conditionKind discriminates the four supported condition shapes from an
// unsupported leaf. Conditions are parsed once at install time into this
// small evaluator rather than re-parsed per signal (spec.md §4.8, §9).
type conditionKind int

const (
	condUnsupported conditionKind = iota
	condAttrEquals
	condResourceEquals
	condAttrAbsent
	condResourceAbsent
)

// condition is the compiled, install-time form of a FilterRule's
// condition string.
type condition struct {
	kind  conditionKind
	key   string
	value string
}

var (
	reAttrEquals     = regexp.MustCompile(`^attributes\["([^"]+)"\]\s*==\s*"([^"]*)"$`)
	reResourceEquals = regexp.MustCompile(`^resource\.attributes\["([^"]+)"\]\s*==\s*"([^"]*)"$`)
	reAttrAbsent     = regexp.MustCompile(`^attributes\["([^"]+)"\]\s*==\s*nil$`)
	reResourceAbsent = regexp.MustCompile(`^resource\.attributes\["([^"]+)"\]\s*==\s*nil$`)
)

// compileCondition parses raw into its discriminated-variant form.
// Unsupported shapes compile successfully into condUnsupported, a leaf
// that always evaluates false (fail closed) rather than an error — the
// Filter Manager still installs the rule so operators can see it counted
// as unused, per spec.md §4.8.
func compileCondition(raw string) condition {
	if m := reResourceAbsent.FindStringSubmatch(raw); m != nil {
		return condition{kind: condResourceAbsent, key: m[1]}
	}
	if m := reAttrAbsent.FindStringSubmatch(raw); m != nil {
		return condition{kind: condAttrAbsent, key: m[1]}
	}
	if m := reResourceEquals.FindStringSubmatch(raw); m != nil {
		return condition{kind: condResourceEquals, key: m[1], value: m[2]}
	}
	if m := reAttrEquals.FindStringSubmatch(raw); m != nil {
		return condition{kind: condAttrEquals, key: m[1], value: m[2]}
	}
	return condition{kind: condUnsupported}
}

// attrSignal is implemented by every Signal kind so condition evaluation
// is written once regardless of signal_type.
type attrSignal interface {
	AttrValue(key string) (string, bool)
	ResourceValue(key string) (string, bool)
}

var (
	_ attrSignal = signal.TraceSpan{}
	_ attrSignal = signal.MetricDataPoint{}
	_ attrSignal = signal.LogEntry{}
)

// matches evaluates the compiled condition against s. Unsupported
// conditions always return false.
func (c condition) matches(s attrSignal) bool {
	switch c.kind {
	case condAttrEquals:
		v, ok := s.AttrValue(c.key)
		return ok && v == c.value
	case condResourceEquals:
		v, ok := s.ResourceValue(c.key)
		return ok && v == c.value
	case condAttrAbsent:
		_, ok := s.AttrValue(c.key)
		return !ok
	case condResourceAbsent:
		_, ok := s.ResourceValue(c.key)
		return !ok
	default:
		return false
	}
}
