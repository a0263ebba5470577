// Package parser turns the LLM's free-text reply into structured
// Recommendations and FilterRules by section extraction — not JSON
// parsing, since the wire contract (spec.md §4.3) only guarantees four
// labeled prose/YAML-ish sections, not a machine-parseable payload.
package parser

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grafana/telemetry-advisor/pkg/recommendation"
)

// ErrEmptyReply is returned when the LLM reply has no content at all.
var ErrEmptyReply = errors.New("parser: empty LLM reply")

const (
	sectionSignalsToDrop = "SIGNALS TO DROP"
	sectionLabelPolicy   = "LABEL POLICY VIOLATIONS"
	sectionFilterRules   = "OTEL FILTER RULES"
	sectionRationale     = "RATIONALE"
)

var sectionHeaders = []string{sectionSignalsToDrop, sectionLabelPolicy, sectionFilterRules, sectionRationale}

// Parse converts raw into ParsedRecommendations. A malformed or missing
// section yields zero items in that category rather than an error — only
// a wholly empty reply is rejected (spec.md §4.4).
func Parse(raw string) (recommendation.ParsedRecommendations, error) {
	if strings.TrimSpace(raw) == "" {
		return recommendation.ParsedRecommendations{}, ErrEmptyReply
	}

	sections := splitSections(raw)
	now := time.Now()

	var recs []recommendation.Recommendation
	for _, bullet := range bullets(sections[sectionSignalsToDrop]) {
		recs = append(recs, newRecommendation(recommendation.TypeDropSignal, bullet, now))
	}
	for _, bullet := range bullets(sections[sectionLabelPolicy]) {
		recs = append(recs, newRecommendation(recommendation.TypeLabelPolicy, bullet, now))
	}

	rules := extractRules(sections[sectionFilterRules])
	unattached := attachRules(recs, rules)

	rationales := bullets(sections[sectionRationale])
	for i := range recs {
		if i < len(rationales) {
			recs[i].Rationale = rationales[i]
		}
	}

	return recommendation.ParsedRecommendations{
		Recommendations: recs,
		UnattachedRules: unattached,
		Summary:         recommendation.Summarize(recs),
		GeneratedAt:     now,
	}, nil
}

func newRecommendation(t recommendation.Type, description string, now time.Time) recommendation.Recommendation {
	return recommendation.Recommendation{
		ID:               uuid.NewString(),
		Type:             t,
		Priority:         inferPriority(description),
		Description:      description,
		EstimatedSavings: "Unknown",
		CreatedAt:        now,
	}
}

// splitSections locates each known header and returns the text between it
// and the next known header (or end of string).
func splitSections(raw string) map[string]string {
	lines := strings.Split(raw, "\n")
	out := make(map[string]string, len(sectionHeaders))

	headerAt := func(line string) string {
		trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ":"))
		for _, h := range sectionHeaders {
			if strings.EqualFold(trimmed, h) {
				return h
			}
		}
		return ""
	}

	current := ""
	var buf []string
	flush := func() {
		if current != "" {
			out[current] = strings.Join(buf, "\n")
		}
		buf = nil
	}

	for _, line := range lines {
		if h := headerAt(line); h != "" {
			flush()
			current = h
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return out
}

// bullets extracts trimmed leading-"-" lines from a section body.
func bullets(section string) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// extractRules scans the OTEL FILTER RULES section for its traces:/
// metrics:/logs: sub-headers (the LLM is asked to nest rules under the
// signal bucket they apply to, the way a filter processor config does)
// and classifies each bullet beneath by the bucket it falls under. A
// bullet line found before any recognized bucket header falls back to
// classifyCondition, so a flatter reply still gets a best-effort guess
// instead of silently defaulting to traces. Quotes are stripped since the
// LLM is asked for YAML-style single-quoted scalars.
func extractRules(section string) []recommendation.FilterRule {
	var out []recommendation.FilterRule
	var current recommendation.SignalType

	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if bucket, ok := bucketHeader(trimmed); ok {
			current = bucket
			continue
		}
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		bullet := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
		if bullet == "" {
			continue
		}
		cond := unquote(bullet)
		if cond == "" {
			continue
		}

		signalType := current
		if signalType == "" {
			signalType = classifyCondition(cond)
		}

		out = append(out, recommendation.FilterRule{
			Name:        "rule-" + uuid.NewString()[:8],
			SignalType:  signalType,
			Condition:   cond,
			Action:      recommendation.ActionDrop,
			Description: bullet,
		})
	}
	return out
}

// bucketHeader recognizes a traces:/metrics:/logs: top-level key or its
// span:/metric:/log_record: nested key, either of which pins the signal
// type of every bullet until the next recognized header.
func bucketHeader(line string) (recommendation.SignalType, bool) {
	key := strings.ToLower(strings.TrimSuffix(line, ":"))
	switch key {
	case "traces", "trace", "span", "spans":
		return recommendation.SignalTrace, true
	case "metrics", "metric":
		return recommendation.SignalMetric, true
	case "logs", "log", "log_record", "log_records":
		return recommendation.SignalLog, true
	default:
		return "", false
	}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func classifyCondition(cond string) recommendation.SignalType {
	switch {
	case strings.Contains(cond, "span.") || strings.Contains(cond, "trace."):
		return recommendation.SignalTrace
	case strings.Contains(cond, "metric."):
		return recommendation.SignalMetric
	case strings.Contains(cond, "log."):
		return recommendation.SignalLog
	default:
		return recommendation.SignalTrace
	}
}

// attachRules links each rule back to the Recommendation whose
// description shares the most bag-of-words overlap with the rule's
// condition text. Rules with zero overlap against every recommendation —
// including every rule when recs is empty — are returned as unattached
// rather than dropped (spec.md §9 open question (iii): they must remain
// installable by the Processor's auto-apply path).
func attachRules(recs []recommendation.Recommendation, rules []recommendation.FilterRule) []recommendation.FilterRule {
	var unattached []recommendation.FilterRule
	for _, rule := range rules {
		if len(recs) == 0 {
			unattached = append(unattached, rule)
			continue
		}

		ruleWords := wordSet(rule.Condition + " " + rule.Description)
		best := -1
		bestScore := 0
		for i, rec := range recs {
			score := overlap(ruleWords, wordSet(rec.Description))
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best >= 0 && bestScore > 0 {
			recs[best].Rules = append(recs[best].Rules, rule)
		} else {
			unattached = append(unattached, rule)
		}
	}
	return unattached
}

func wordSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue // skip short stop-word-ish tokens
		}
		set[f] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

var priorityHigh = []string{"critical", "urgent", "compliance", "security", "high volume", "expensive"}
var priorityMedium = []string{"optimize", "improve", "reduce", "performance"}

func inferPriority(description string) recommendation.Priority {
	lower := strings.ToLower(description)
	for _, kw := range priorityHigh {
		if strings.Contains(lower, kw) {
			return recommendation.PriorityHigh
		}
	}
	for _, kw := range priorityMedium {
		if strings.Contains(lower, kw) {
			return recommendation.PriorityMedium
		}
	}
	return recommendation.PriorityLow
}

// RenderYAML renders recs' FilterRules as a filter-processor-style YAML
// fragment, bucketed by signal type. This is a convenience for the
// dry-run CLI only — it is never used on the data path.
func RenderYAML(recs []recommendation.Recommendation) string {
	var traces, metrics, logs []string
	for _, rec := range recs {
		for _, r := range rec.Rules {
			switch r.SignalType {
			case recommendation.SignalTrace:
				traces = append(traces, r.Condition)
			case recommendation.SignalMetric:
				metrics = append(metrics, r.Condition)
			case recommendation.SignalLog:
				logs = append(logs, r.Condition)
			}
		}
	}
	sort.Strings(traces)
	sort.Strings(metrics)
	sort.Strings(logs)

	var b strings.Builder
	writeBucket := func(top, inner string, conds []string) {
		if len(conds) == 0 {
			return
		}
		b.WriteString(top + ":\n  " + inner + ":\n")
		for _, c := range conds {
			b.WriteString("    - '" + c + "'\n")
		}
	}
	writeBucket("traces", "span", traces)
	writeBucket("metrics", "metric", metrics)
	writeBucket("logs", "log_record", logs)
	return b.String()
}
