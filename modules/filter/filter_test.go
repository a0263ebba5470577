package filter

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/telemetry-advisor/pkg/recommendation"
	"github.com/grafana/telemetry-advisor/pkg/signal"
)

func rule(name, st, cond string) recommendation.FilterRule {
	return recommendation.FilterRule{
		Name:       name,
		SignalType: recommendation.SignalType(st),
		Condition:  cond,
		Action:     recommendation.ActionDrop,
	}
}

// TestE2E1_DropByPolicy is the literal E2E-1 fixture from spec.md §8.
func TestE2E1_DropByPolicy(t *testing.T) {
	m := New(Config{MaxRules: 10}, nil)
	m.Install([]recommendation.FilterRule{
		rule("require-env", "trace", `resource.attributes["environment"] == nil`),
	})

	traces := []signal.TraceSpan{
		{Name: "a", ResourceTags: map[string]string{"environment": "prod"}},
		{Name: "b", ResourceTags: map[string]string{}},
		{Name: "c", ResourceTags: map[string]string{"environment": "dev"}},
	}

	survivors := m.FilterTraces(traces)
	require.Len(t, survivors, 2)
	assert.Equal(t, "a", survivors[0].Name)
	assert.Equal(t, "c", survivors[1].Name)
}

func TestInstall_DuplicateNameSkipped(t *testing.T) {
	m := New(Config{MaxRules: 10}, nil)
	m.Install([]recommendation.FilterRule{rule("r1", "log", `attributes["level"] == "DEBUG"`)})
	m.Install([]recommendation.FilterRule{rule("r1", "log", `attributes["level"] == "DEBUG"`)})
	assert.Equal(t, 1, m.Len())
}

func TestInstall_RespectsCap(t *testing.T) {
	m := New(Config{MaxRules: 2}, nil)
	for i := 0; i < 5; i++ {
		m.Install([]recommendation.FilterRule{rule(uuid.NewString(), "log", `attributes["level"] == "DEBUG"`)})
	}
	assert.LessOrEqual(t, m.Len(), 2)
}

func TestInstall_UniqueNamesInvariant(t *testing.T) {
	m := New(Config{MaxRules: 100}, nil)
	for i := 0; i < 20; i++ {
		m.Install([]recommendation.FilterRule{rule("dup", "log", `attributes["level"] == "DEBUG"`)})
	}
	assert.Equal(t, 1, m.Len())
}

func TestEvaluate_UnsupportedConditionFailsClosed(t *testing.T) {
	m := New(Config{MaxRules: 10}, nil)
	m.Install([]recommendation.FilterRule{rule("weird", "trace", `span.duration > 100ms`)})

	survivors := m.FilterTraces([]signal.TraceSpan{{Name: "kept"}})
	require.Len(t, survivors, 1)
}

func TestFilter_IdempotentAndOrderPreserving(t *testing.T) {
	m := New(Config{MaxRules: 10}, nil)
	m.Install([]recommendation.FilterRule{rule("drop-debug", "log", `attributes["level"] == "DEBUG"`)})

	logs := []signal.LogEntry{
		{Message: "1", Attributes: map[string]string{"level": "INFO"}},
		{Message: "2", Attributes: map[string]string{"level": "DEBUG"}},
		{Message: "3", Attributes: map[string]string{"level": "INFO"}},
	}

	once := m.FilterLogs(logs)
	twice := m.FilterLogs(once)
	assert.Equal(t, once, twice)
	require.Len(t, once, 2)
	assert.Equal(t, "1", once[0].Message)
	assert.Equal(t, "3", once[1].Message)
}

func TestClear_EmptiesSetAndIndex(t *testing.T) {
	m := New(Config{MaxRules: 10}, nil)
	m.Install([]recommendation.FilterRule{rule("r1", "log", `attributes["level"] == "DEBUG"`)})
	m.Clear()
	assert.Equal(t, 0, m.Len())
	m.Install([]recommendation.FilterRule{rule("r1", "log", `attributes["level"] == "DEBUG"`)})
	assert.Equal(t, 1, m.Len())
}

func TestAttributeEquals(t *testing.T) {
	m := New(Config{MaxRules: 10}, nil)
	m.Install([]recommendation.FilterRule{rule("eq", "log", `attributes["level"] == "DEBUG"`)})

	logs := []signal.LogEntry{
		{Message: "keep", Attributes: map[string]string{"level": "INFO"}},
		{Message: "drop", Attributes: map[string]string{"level": "DEBUG"}},
	}
	survivors := m.FilterLogs(logs)
	require.Len(t, survivors, 1)
	assert.Equal(t, "keep", survivors[0].Message)
}

func TestResourceAttributeEquals(t *testing.T) {
	m := New(Config{MaxRules: 10}, nil)
	m.Install([]recommendation.FilterRule{rule("eq", "metric", `resource.attributes["tier"] == "internal"`)})

	metrics := []signal.MetricDataPoint{
		{Name: "a", ResourceTags: map[string]string{"tier": "internal"}},
		{Name: "b", ResourceTags: map[string]string{"tier": "external"}},
	}
	survivors := m.FilterMetrics(metrics)
	require.Len(t, survivors, 1)
	assert.Equal(t, "b", survivors[0].Name)
}
