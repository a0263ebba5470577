// Package ratelimit gates the LLM client behind a token bucket: capacity
// rate_limit_rpm, refilling one token every 60s/rate_limit_rpm, starting
// full. It is a thin wrapper around golang.org/x/time/rate — the same
// dependency the teacher's own pkg/util.RateLimitedLogger uses for exactly
// this token-bucket shape — adding the prometheus counter spec.md §7
// requires on the cancellation path.
package ratelimit

import (
	"context"
	"flag"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Config controls the bucket's capacity.
type Config struct {
	RequestsPerMinute int `yaml:"rate_limit_rpm"`
}

// RegisterFlagsAndApplyDefaults registers Config's flags with defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.RequestsPerMinute, prefix+"rate-limit-rpm", 60, "maximum LLM advisory requests per minute")
}

var metricWaitCancelled = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "telemetry_advisor",
	Subsystem: "ratelimit",
	Name:      "wait_cancelled_total",
	Help:      "Number of rate-limiter waits that were aborted by cancellation before a token became available.",
})

// Limiter is a token-bucket gate. The bucket starts full; refill happens
// continuously at RequestsPerMinute/60 tokens per second, consumption and
// refill both safe for concurrent use.
type Limiter struct {
	rl *rate.Limiter
}

// New builds a Limiter with capacity == refill rate, matching spec.md
// §4.6's "capacity = rate_limit_rpm" token bucket exactly: x/time/rate's
// burst parameter IS the bucket capacity, and it starts full.
func New(cfg Config) *Limiter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	perSecond := float64(rpm) / 60.0
	return &Limiter{rl: rate.NewLimiter(rate.Limit(perSecond), rpm)}
}

// Wait blocks until a token is available or ctx is cancelled. On
// cancellation it returns ctx.Err() and increments the cancellation
// counter.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.rl.Wait(ctx); err != nil {
		metricWaitCancelled.Inc()
		return err
	}
	return nil
}

// Tokens reports the current (possibly fractional) number of tokens
// available, for tests and status reporting.
func (l *Limiter) Tokens() float64 {
	return l.rl.TokensAt(time.Now())
}
