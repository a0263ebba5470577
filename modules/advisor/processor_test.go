package advisor

import (
	"flag"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grafana/telemetry-advisor/pkg/recommendation"
	"github.com/grafana/telemetry-advisor/pkg/signal"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	var cfg Config
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.PanicOnError))
	cfg.LLM.Endpoint = "http://127.0.0.1:0" // never dialed by these tests
	cfg.MetricsEnabled = false

	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestProcessTraces_FiltersSurvivorsInOrder(t *testing.T) {
	p := newTestProcessor(t)
	p.Filters().Install([]recommendation.FilterRule{{
		Name:       "drop-dev",
		SignalType: recommendation.SignalTrace,
		Condition:  `resource.attributes["environment"] == nil`,
		Action:     recommendation.ActionDrop,
	}})

	traces := []signal.TraceSpan{
		{Name: "a", ResourceTags: map[string]string{"environment": "prod"}},
		{Name: "b", ResourceTags: map[string]string{}},
		{Name: "c", ResourceTags: map[string]string{"environment": "dev"}},
	}

	out := p.ProcessTraces(traces)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "c", out[1].Name)
}

func TestProcessMetricsAndLogs_BufferAndPassThroughWithNoRules(t *testing.T) {
	p := newTestProcessor(t)

	metrics := []signal.MetricDataPoint{{Name: "cpu"}, {Name: "mem"}}
	out := p.ProcessMetrics(metrics)
	assert.Len(t, out, 2)

	logs := []signal.LogEntry{{Message: "hello"}}
	outLogs := p.ProcessLogs(logs)
	assert.Len(t, outLogs, 1)
}

func TestTick_EmptySampleIsSkipped(t *testing.T) {
	p := newTestProcessor(t)
	before := p.GetActiveRecommendations()

	p.tick(nil) //nolint:staticcheck // sampler.Draw never touches ctx when buffers are empty

	after := p.GetActiveRecommendations()
	assert.Equal(t, before.Summary.Total, after.Summary.Total)
}

func TestGetActiveRecommendations_StartsEmpty(t *testing.T) {
	p := newTestProcessor(t)
	assert.Equal(t, 0, p.GetActiveRecommendations().Summary.Total)
}

func TestStatusHandler_RendersTables(t *testing.T) {
	p := newTestProcessor(t)
	p.Filters().Install([]recommendation.FilterRule{{
		Name:       "r1",
		SignalType: recommendation.SignalLog,
		Condition:  `attributes["level"] == "DEBUG"`,
		Action:     recommendation.ActionDrop,
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	p.StatusHandler(rec, req)

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "r1")
	assert.Contains(t, body, "active filter rules")
}

func TestRouter_RegistersStatusAndMetrics(t *testing.T) {
	p := newTestProcessor(t)
	router := p.Router()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, 200, rec2.Code)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
