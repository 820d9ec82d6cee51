package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Observer receives lifecycle notifications, e.g. for metrics.
// Implementations must be safe for concurrent use and must not call back into
// the Controller. Notifications for different epochs may arrive out of order.
type Observer interface {
	// OnTransition is called after the controller moved between states.
	OnTransition(epoch Epoch, from, to State)
	// OnSuperseded is called when a construction result is abandoned because
	// a newer epoch is active.
	OnSuperseded(epoch Epoch)
	// OnDestroyError is called when destroying a handle failed.
	OnDestroyError(epoch Epoch, err error)
}

// NoopObserver ignores all notifications.
type NoopObserver struct{}

func (NoopObserver) OnTransition(Epoch, State, State) {}
func (NoopObserver) OnSuperseded(Epoch)               {}
func (NoopObserver) OnDestroyError(Epoch, error)      {}

// DefaultDestroyTimeout bounds destroy calls unless WithDestroyTimeout is set.
const DefaultDestroyTimeout = 30 * time.Second

type options struct {
	ctx            context.Context
	logger         *slog.Logger
	observer       Observer
	destroyTimeout time.Duration
}

// Option configures a Controller.
type Option func(*options)

// WithLogger sets the logger. Pass nil to disable logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		o.logger = logger
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer == nil {
			observer = NoopObserver{}
		}
		o.observer = observer
	}
}

// WithDestroyTimeout bounds every destroy call. A reconfiguration builds the
// next handle only after the retired one is destroyed, so d also bounds how
// long a slow or hung destroy can delay readiness. Once d has passed the next
// construction starts even if destroy has not returned. Non-positive values
// keep DefaultDestroyTimeout.
func WithDestroyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.destroyTimeout = d
		}
	}
}

// WithContext sets the context passed to build and destroy functions.
// Values are inherited; cancellation is not (constructions are abandoned
// cooperatively, never preempted).
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = context.WithoutCancel(ctx)
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		ctx:            context.Background(),
		logger:         slog.New(slog.DiscardHandler),
		observer:       NoopObserver{},
		destroyTimeout: DefaultDestroyTimeout,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
