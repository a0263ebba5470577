package recommender

import (
	"context"
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/telemetry-advisor/modules/llmclient"
	"github.com/grafana/telemetry-advisor/pkg/recommendation"
	"github.com/grafana/telemetry-advisor/pkg/signal"
)

type stubClient struct {
	calls int
	reply string
	err   error
}

func (s *stubClient) Recommend(ctx context.Context, sampleJSON []byte, policySummaries []string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubCache struct {
	store map[uint64]recommendation.ParsedRecommendations
}

func newStubCache() *stubCache {
	return &stubCache{store: map[uint64]recommendation.ParsedRecommendations{}}
}

func (c *stubCache) Lookup(s signal.Sample) (recommendation.ParsedRecommendations, bool) {
	v, ok := c.store[s.Metadata.Fingerprint()]
	return v, ok
}

func (c *stubCache) Store(s signal.Sample, rec recommendation.ParsedRecommendations) {
	c.store[s.Metadata.Fingerprint()] = rec
}

type stubLimiter struct {
	waits int
	err   error
}

func (l *stubLimiter) Wait(ctx context.Context) error {
	l.waits++
	return l.err
}

func sampleWithTotals(traces, metrics, logs int) signal.Sample {
	return signal.Sample{
		Metadata: signal.SampleMetadata{TotalTraces: traces, TotalMetrics: metrics, TotalLogs: logs},
	}
}

const replyText = `SIGNALS TO DROP
- drop noisy health check spans
`

func TestRecommend_CacheHitSkipsClientAndLimiter(t *testing.T) {
	cache := newStubCache()
	client := &stubClient{reply: replyText}
	lim := &stubLimiter{}
	r := New(Config{EnableCache: true, EnableRateLimit: true}, client, cache, lim, nil)

	sample := sampleWithTotals(1, 2, 3)
	cache.Store(sample, recommendation.ParsedRecommendations{Summary: recommendation.Summary{Total: 1}})

	got, err := r.Recommend(context.Background(), sample, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Summary.Total)
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, 0, lim.waits)
}

func TestRecommend_MissCallsClientAndStores(t *testing.T) {
	cache := newStubCache()
	client := &stubClient{reply: replyText}
	lim := &stubLimiter{}
	r := New(Config{EnableCache: true, EnableRateLimit: true}, client, cache, lim, nil)

	sample := sampleWithTotals(5, 5, 5)
	got, err := r.Recommend(context.Background(), sample, []string{"policy A"})
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 1, lim.waits)
	require.Len(t, got.Recommendations, 1)

	_, ok := cache.Lookup(sample)
	assert.True(t, ok)
}

// TestRecommend_FallbackSubstitution is the literal E2E/testable-property-8
// fixture: when the client is stubbed to fail and fallback is enabled, the
// return set is exactly the static set (same ids, types, priorities,
// rules) modulo timestamps.
func TestRecommend_FallbackSubstitution(t *testing.T) {
	client := &stubClient{err: &llmclient.TransportError{StatusCode: 500, Body: "boom"}}
	r := New(Config{EnableCache: false, EnableRateLimit: false, FallbackToStatic: true}, client, nil, nil, nil)

	got, err := r.Recommend(context.Background(), sampleWithTotals(1, 1, 1), nil)
	require.NoError(t, err)

	want := staticFallback()
	diff := cmp.Diff(want, got, cmpopts.IgnoreFields(recommendation.Recommendation{}, "CreatedAt"),
		cmpopts.IgnoreFields(recommendation.ParsedRecommendations{}, "GeneratedAt"))
	assert.Empty(t, diff)
}

func TestRecommend_FallbackDisabledPropagatesError(t *testing.T) {
	client := &stubClient{err: &llmclient.TransportError{StatusCode: 500}}
	r := New(Config{FallbackToStatic: false}, client, nil, nil, nil)

	_, err := r.Recommend(context.Background(), sampleWithTotals(1, 1, 1), nil)
	assert.Error(t, err)
}

func TestRecommend_NonTransportErrorNeverFallsBack(t *testing.T) {
	client := &stubClient{err: errors.New("context canceled")}
	r := New(Config{FallbackToStatic: true}, client, nil, nil, nil)

	_, err := r.Recommend(context.Background(), sampleWithTotals(1, 1, 1), nil)
	assert.Error(t, err)
}

func TestRecommend_RateLimiterCancellationPropagates(t *testing.T) {
	client := &stubClient{reply: replyText}
	lim := &stubLimiter{err: context.DeadlineExceeded}
	r := New(Config{EnableRateLimit: true}, client, nil, lim, nil)

	_, err := r.Recommend(context.Background(), sampleWithTotals(1, 1, 1), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, client.calls)
}

func TestRegisterFlagsAndApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.PanicOnError))
	assert.Equal(t, 5*time.Minute, cfg.SamplingInterval)
	assert.True(t, cfg.EnableCache)
	assert.True(t, cfg.FallbackToStatic)
}
