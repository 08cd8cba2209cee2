package scan

import (
	"time"

	"github.com/okian/convtrack/pkg/logger"
)

// Option configures a runner.
type Option func(*options)

type options struct {
	now   func() time.Time
	log   logger.Logger
	fresh bool
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithFresh discards any cached result before running.
func WithFresh(fresh bool) Option {
	return func(o *options) { o.fresh = fresh }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now, log: logger.OrNop().Named("scan")}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
