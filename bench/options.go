package bench

import (
	"time"

	"github.com/hupe1980/chunkcache"
	"github.com/hupe1980/chunkcache/lifecycle"
)

type options struct {
	logger         *chunkcache.Logger
	observer       lifecycle.Observer
	form           Form
	destroyTimeout time.Duration
}

// Option configures a Harness.
type Option func(*options)

// WithLogger sets the logger used by the harness and its controller.
func WithLogger(logger *chunkcache.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = chunkcache.NoopLogger()
		}
		o.logger = logger
	}
}

// WithObserver receives the controller's lifecycle notifications.
func WithObserver(obs lifecycle.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithForm sets the initial form values. A persisted chunk limit in the
// session takes precedence over form.MaxTotalChunks.
func WithForm(form Form) Option {
	return func(o *options) {
		o.form = form
	}
}

// WithDestroyTimeout bounds how long destroying a cache may take, and with it
// how long a rebuild waits for the previous cache to go away.
func WithDestroyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.destroyTimeout = d
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:         chunkcache.NoopLogger(),
		observer:       lifecycle.NoopObserver{},
		form:           DefaultForm(),
		destroyTimeout: lifecycle.DefaultDestroyTimeout,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
