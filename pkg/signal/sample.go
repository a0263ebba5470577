package signal

import (
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// SampleMetadata describes the provenance of a Sample: how much source
// data it was drawn from, which services it touched, and when.
type SampleMetadata struct {
	TotalTraces  int       `json:"total_traces"`
	TotalMetrics int       `json:"total_metrics"`
	TotalLogs    int       `json:"total_logs"`
	Services     []string  `json:"services"`
	SampledAt    time.Time `json:"sampled_at"`
	TimeRange    string    `json:"time_range"`
}

// Sample is an immutable, anonymized, bounded snapshot of in-flight
// telemetry. Callers never get a reference into the Sampler's buffers.
type Sample struct {
	Traces   []TraceSpan       `json:"traces"`
	Metrics  []MetricDataPoint `json:"metrics"`
	Logs     []LogEntry        `json:"logs"`
	Metadata SampleMetadata    `json:"metadata"`
}

// Empty reports whether the Sample carries no signals at all; callers use
// this to skip a recommendation cycle rather than ask the LLM about
// nothing.
func (s Sample) Empty() bool {
	return len(s.Traces) == 0 && len(s.Metrics) == 0 && len(s.Logs) == 0
}

// Fingerprint derives the cache key for this Sample. By design it is a
// function of the three source totals only — never of payload content —
// so the cache can never retain attribute values or service names. This is
// a deliberate approximation (see spec.md §9): two distinct samples with
// identical totals collide and are treated as the same workload.
func (m SampleMetadata) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [24]byte
	putUint64(buf[0:8], uint64(m.TotalTraces))
	putUint64(buf[8:16], uint64(m.TotalMetrics))
	putUint64(buf[16:24], uint64(m.TotalLogs))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// ToJSON renders the Sample the way it is interpolated into the LLM user
// prompt.
func (s Sample) ToJSON() ([]byte, error) {
	return jsonAPI.Marshal(s)
}
