package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_StartsFullAllowsBurstImmediately(t *testing.T) {
	l := New(Config{RequestsPerMinute: 3})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}

func TestWait_BlocksUntilRefillNotError(t *testing.T) {
	l := New(Config{RequestsPerMinute: 120}) // 2/sec, burst 120
	ctx := context.Background()
	for i := 0; i < 120; i++ {
		require.NoError(t, l.Wait(ctx))
	}

	start := time.Now()
	err := l.Wait(ctx)
	elapsed := time.Since(start)
	assert.NoError(t, err)
	assert.Greater(t, elapsed, time.Duration(0))
}

func TestWait_CancellationReturnsErrorNotBlock(t *testing.T) {
	l := New(Config{RequestsPerMinute: 1})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx)) // drain the single token

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := l.Wait(cancelCtx)
	assert.Error(t, err)
}

func TestConformance_AtMostRPMCallsPerMinute(t *testing.T) {
	const rpm = 2
	l := New(Config{RequestsPerMinute: rpm})
	ctx := context.Background()

	allowed := 0
	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		shortCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
		if err := l.Wait(shortCtx); err == nil {
			allowed++
		}
		cancel()
	}
	assert.LessOrEqual(t, allowed, rpm) // burst capacity, no additional refill within this short window
}
