// Package signal holds the telemetry data model shared by every
// telemetry-advisor component: the three Signal kinds (TraceSpan,
// MetricDataPoint, LogEntry) and the Sample the Sampler hands to the
// Recommender.
package signal

import "time"

// Kind identifies which of the three Signal shapes a value carries.
type Kind string

const (
	KindTrace  Kind = "trace"
	KindMetric Kind = "metric"
	KindLog    Kind = "log"
)

// TraceSpan is a single span of a trace.
type TraceSpan struct {
	Name         string            `json:"name"`
	Service      string            `json:"service"`
	Duration     time.Duration     `json:"duration"`
	Status       string            `json:"status"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	ResourceTags map[string]string `json:"resource_tags,omitempty"`
}

// MetricDataPoint is a single sample of a metric series.
type MetricDataPoint struct {
	Name         string            `json:"name"`
	Value        float64           `json:"value"`
	Kind         string            `json:"kind"` // gauge | counter | histogram
	Labels       map[string]string `json:"labels,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	ResourceTags map[string]string `json:"resource_tags,omitempty"`
}

// LogEntry is a single log record.
type LogEntry struct {
	Level        string            `json:"level"`
	Message      string            `json:"message"`
	Service      string            `json:"service"`
	Timestamp    time.Time         `json:"timestamp"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	ResourceTags map[string]string `json:"resource_tags,omitempty"`
}

// AttrValue returns the attribute value for key, and whether it was present
// and non-empty. Shared helper used by the filter condition evaluator.
func (t TraceSpan) AttrValue(key string) (string, bool) {
	v, ok := t.Attributes[key]
	return v, ok && v != ""
}

// ResourceValue returns the resource tag value for key.
func (t TraceSpan) ResourceValue(key string) (string, bool) {
	v, ok := t.ResourceTags[key]
	return v, ok && v != ""
}

// AttrValue implements the same lookup for LogEntry.
func (l LogEntry) AttrValue(key string) (string, bool) {
	v, ok := l.Attributes[key]
	return v, ok && v != ""
}

// ResourceValue implements the same lookup for LogEntry.
func (l LogEntry) ResourceValue(key string) (string, bool) {
	v, ok := l.ResourceTags[key]
	return v, ok && v != ""
}

// AttrValue implements the same lookup for MetricDataPoint, reading from
// Labels rather than Attributes.
func (m MetricDataPoint) AttrValue(key string) (string, bool) {
	v, ok := m.Labels[key]
	return v, ok && v != ""
}

// ResourceValue implements the same lookup for MetricDataPoint.
func (m MetricDataPoint) ResourceValue(key string) (string, bool) {
	v, ok := m.ResourceTags[key]
	return v, ok && v != ""
}
