package anonymizer

import "github.com/grafana/telemetry-advisor/pkg/signal"

// Trace returns a copy of t with every string field and map value passed
// through the redaction table. The span name and status are structural
// (not free text) but are anonymized anyway since operators sometimes
// encode identifiers into them.
func (a *Anonymizer) Trace(t signal.TraceSpan) signal.TraceSpan {
	t.Name = a.String(t.Name)
	t.Service = a.String(t.Service)
	t.Status = a.String(t.Status)
	t.Attributes = a.StringMap(t.Attributes)
	t.ResourceTags = a.StringMap(t.ResourceTags)
	return t
}

// Metric returns a copy of m with its labels and resource tags redacted.
func (a *Anonymizer) Metric(m signal.MetricDataPoint) signal.MetricDataPoint {
	m.Name = a.String(m.Name)
	m.Labels = a.StringMap(m.Labels)
	m.ResourceTags = a.StringMap(m.ResourceTags)
	return m
}

// Log returns a copy of l with its message, attributes and resource tags
// redacted.
func (a *Anonymizer) Log(l signal.LogEntry) signal.LogEntry {
	l.Message = a.String(l.Message)
	l.Service = a.String(l.Service)
	l.Attributes = a.StringMap(l.Attributes)
	l.ResourceTags = a.StringMap(l.ResourceTags)
	return l
}
