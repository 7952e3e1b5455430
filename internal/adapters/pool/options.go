package pool

import "github.com/okian/sieve/pkg/logger"

type options struct {
	workers int
	name    string
	log     logger.Logger
}

// Option configures a Run.
type Option func(*options)

// WithWorkers sets the number of concurrent workers. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithName sets the pool name used for logging.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
