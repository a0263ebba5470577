// Package log provides the leveled logger shared across telemetry-advisor
// modules. Components take a log.Logger at construction rather than
// reaching for package state, so tests can inject a buffer or a no-op.
package log

import (
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/time/rate"
)

// Level controls the minimum severity a Logger built by New will emit.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// New builds a logfmt logger writing to stderr, filtered to lvl.
func New(lvl Level) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var opt level.Option
	switch lvl {
	case LevelDebug:
		opt = level.AllowDebug()
	case LevelWarn:
		opt = level.AllowWarn()
	case LevelError:
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}

	return level.NewFilter(logger, opt)
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() log.Logger {
	return log.NewNopLogger()
}

// RateLimited wraps a Logger so that at most logsPerSecond lines pass
// through per second; callers on a hot path (per-signal warnings) use this
// instead of logging unconditionally.
type RateLimited struct {
	limiter *rate.Limiter
	logger  log.Logger
}

// NewRateLimited returns a RateLimited logger allowing logsPerSecond log
// lines per second, with a burst of 1.
func NewRateLimited(logsPerSecond int, logger log.Logger) *RateLimited {
	return &RateLimited{
		limiter: rate.NewLimiter(rate.Limit(logsPerSecond), 1),
		logger:  logger,
	}
}

// Log drops the line silently if the rate has been exceeded.
func (l *RateLimited) Log(keyvals ...interface{}) error {
	if !l.limiter.AllowN(time.Now(), 1) {
		return nil
	}
	return l.logger.Log(keyvals...)
}
