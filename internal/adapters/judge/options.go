package judge

import (
	"time"

	"github.com/okian/sieve/pkg/logger"
	"golang.org/x/time/rate"
)

// Option configures an Exec invoker.
type Option func(*Exec)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Exec) {
		if l != nil {
			e.log = l
		}
	}
}

// WithLaunchRate caps process launches per second across all callers.
// A non-positive rate disables the limit.
func WithLaunchRate(perSecond float64) Option {
	return func(e *Exec) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithWaitDelay bounds how long output pipes are drained after a kill.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Exec) {
		if d > 0 {
			e.waitDelay = d
		}
	}
}
