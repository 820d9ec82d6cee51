package lifecycle

import (
	"context"
	"sync"
)

// BuildFunc constructs a handle from a configuration.
type BuildFunc[C any, H any] func(ctx context.Context, cfg C) (H, error)

// DestroyFunc releases a handle. It is called at most once per handle.
type DestroyFunc[H any] func(ctx context.Context, h H) error

// lease is an installed handle together with its outstanding borrows.
type lease[H any] struct {
	handle   H
	epoch    Epoch
	inflight sync.WaitGroup
}

// Controller owns zero or one current handle of type H built from a
// configuration of type C.
//
// All methods are safe for concurrent use. The internal mutex is never held
// while calling build, destroy or borrowed functions.
type Controller[C comparable, H any] struct {
	build   BuildFunc[C, H]
	destroy DestroyFunc[H]
	opts    options

	mu        sync.Mutex
	epoch     Epoch
	state     State
	current   *lease[H]
	config    C
	hasConfig bool
	err       error
	changed   chan struct{}
	// drained is closed once every handle retired so far has been destroyed.
	drained chan struct{}

	wg sync.WaitGroup
}

// New creates a controller in StateUninitialized. Nothing is built until the
// first Reconfigure.
func New[C comparable, H any](build BuildFunc[C, H], destroy DestroyFunc[H], optFns ...Option) *Controller[C, H] {
	drained := make(chan struct{})
	close(drained)

	return &Controller[C, H]{
		build:   build,
		destroy: destroy,
		opts:    applyOptions(optFns),
		changed: make(chan struct{}),
		drained: drained,
	}
}

// Reconfigure starts building a handle for cfg under a new epoch and returns
// that epoch. The current handle (if any) is withdrawn before Reconfigure
// returns and destroyed in the background.
//
// Reconfigure does not wait for the construction; observe Snapshot or call
// Wait for the outcome. It returns ErrClosed after Teardown.
func (c *Controller[C, H]) Reconfigure(cfg C) (Epoch, error) {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return 0, ErrClosed
	}

	c.epoch++
	e := c.epoch
	c.config = cfg
	c.hasConfig = true
	c.err = nil

	drained := c.retireLocked()
	from := c.setStateLocked(StateConstructing)

	c.wg.Add(1)
	c.mu.Unlock()

	c.opts.logger.Debug("reconfigure", "epoch", e, "from", from.String())
	c.opts.observer.OnTransition(e, from, StateConstructing)

	go c.construct(e, cfg, drained)

	return e, nil
}

// Current returns the current handle, or a *NotReadyError.
//
// The handle must not be retained: it may be destroyed as soon as a
// reconfiguration retires it. Prefer Do, which holds a lease.
func (c *Controller[C, H]) Current() (H, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateReady && c.current != nil {
		return c.current.handle, nil
	}

	var zero H
	return zero, c.notReadyLocked()
}

// Do borrows the current handle for the duration of fn.
//
// If no handle is ready, fn is not called and a *NotReadyError is returned
// immediately. A handle retired while fn runs is destroyed only after fn
// returns.
func (c *Controller[C, H]) Do(ctx context.Context, fn func(ctx context.Context, h H) error) error {
	l, err := c.acquire()
	if err != nil {
		return err
	}
	defer l.inflight.Done()

	return fn(ctx, l.handle)
}

// Call is Do for functions returning a value.
func Call[C comparable, H any, R any](ctx context.Context, c *Controller[C, H], fn func(ctx context.Context, h H) (R, error)) (R, error) {
	l, err := c.acquire()
	if err != nil {
		var zero R
		return zero, err
	}
	defer l.inflight.Done()

	return fn(ctx, l.handle)
}

// Snapshot returns the current epoch and state.
func (c *Controller[C, H]) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Epoch:   c.epoch,
		State:   c.state,
		Err:     c.err,
		Changed: c.changed,
	}
}

// Config returns the configuration of the most recent Reconfigure.
func (c *Controller[C, H]) Config() (C, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config, c.hasConfig
}

// Wait blocks while the controller is constructing and returns the handle
// once ready. It returns a *NotReadyError if construction failed, the
// controller was never configured or it was torn down.
func (c *Controller[C, H]) Wait(ctx context.Context) (H, error) {
	var zero H
	for {
		c.mu.Lock()
		switch c.state {
		case StateReady:
			h := c.current.handle
			c.mu.Unlock()
			return h, nil
		case StateConstructing:
			changed := c.changed
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-changed:
			}
		default:
			err := c.notReadyLocked()
			c.mu.Unlock()
			return zero, err
		}
	}
}

// Teardown supersedes the active epoch, destroys the current handle and waits
// until all background constructions and destructions have finished or ctx is
// done. It is idempotent; later calls only wait.
func (c *Controller[C, H]) Teardown(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDestroyed {
		c.epoch++
		e := c.epoch

		c.retireLocked()
		from := c.setStateLocked(StateDestroyed)
		c.mu.Unlock()

		c.opts.logger.Debug("teardown", "epoch", e, "from", from.String())
		c.opts.observer.OnTransition(e, from, StateDestroyed)
	} else {
		c.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller[C, H]) acquire() (*lease[H], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady || c.current == nil {
		return nil, c.notReadyLocked()
	}

	l := c.current
	l.inflight.Add(1)
	return l, nil
}

func (c *Controller[C, H]) construct(e Epoch, cfg C, drained <-chan struct{}) {
	defer c.wg.Done()

	<-drained

	if !c.isActive(e) {
		c.opts.logger.Debug("construction skipped", "epoch", e)
		c.opts.observer.OnSuperseded(e)
		return
	}

	h, err := c.safeBuild(cfg)

	c.mu.Lock()
	if c.epoch != e {
		if err != nil {
			c.mu.Unlock()
			c.opts.logger.Debug("superseded construction failed", "epoch", e, "error", err)
			return
		}
		c.destroyAfterLocked(e, h, "superseded", nil)
		c.mu.Unlock()

		c.opts.logger.Debug("discarding superseded handle", "epoch", e)
		c.opts.observer.OnSuperseded(e)
		return
	}

	if err != nil {
		c.err = err
		from := c.setStateLocked(StateFailed)
		c.mu.Unlock()

		c.opts.logger.Error("construction failed", "epoch", e, "error", err)
		c.opts.observer.OnTransition(e, from, StateFailed)
		return
	}

	c.current = &lease[H]{handle: h, epoch: e}
	from := c.setStateLocked(StateReady)
	c.mu.Unlock()

	c.opts.logger.Debug("ready", "epoch", e)
	c.opts.observer.OnTransition(e, from, StateReady)
}

// retireLocked withdraws the current handle and schedules its destruction
// once its leases are released. It returns the channel later constructions
// wait on.
func (c *Controller[C, H]) retireLocked() <-chan struct{} {
	old := c.current
	if old == nil {
		return c.drained
	}
	c.current = nil
	return c.destroyAfterLocked(old.epoch, old.handle, "retired", old.inflight.Wait)
}

// destroyAfterLocked queues the destruction of h behind every earlier one.
// wait, if set, runs first and returns once h is no longer borrowed. The
// returned channel replaces c.drained and is closed when h is destroyed or
// the destroy timeout has passed, whichever comes first.
func (c *Controller[C, H]) destroyAfterLocked(e Epoch, h H, reason string, wait func()) <-chan struct{} {
	prev := c.drained
	done := make(chan struct{})
	c.drained = done

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		<-prev
		if wait != nil {
			wait()
		}
		c.destroyHandle(e, h, reason, done)
	}()

	return done
}

// destroyHandle destroys h and closes released when destroy returns or its
// timeout expires. A destroy that ignores its context keeps running in the
// background and Teardown still waits for it.
func (c *Controller[C, H]) destroyHandle(e Epoch, h H, reason string, released chan<- struct{}) {
	ctx, cancel := context.WithTimeout(c.opts.ctx, c.opts.destroyTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- c.safeDestroy(ctx, h) }()

	var err error
	select {
	case err = <-result:
		close(released)
	case <-ctx.Done():
		close(released)
		c.opts.logger.Warn("destroy exceeded timeout", "epoch", e, "reason", reason, "timeout", c.opts.destroyTimeout)
		err = <-result
	}

	if err != nil {
		c.opts.logger.Error("destroy failed", "epoch", e, "reason", reason, "error", err)
		c.opts.observer.OnDestroyError(e, err)
		return
	}
	c.opts.logger.Debug("destroyed", "epoch", e, "reason", reason)
}

func (c *Controller[C, H]) safeBuild(cfg C) (h H, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return c.build(c.opts.ctx, cfg)
}

func (c *Controller[C, H]) safeDestroy(ctx context.Context, h H) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return c.destroy(ctx, h)
}

func (c *Controller[C, H]) isActive(e Epoch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == e
}

func (c *Controller[C, H]) setStateLocked(s State) State {
	from := c.state
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
	return from
}

func (c *Controller[C, H]) notReadyLocked() error {
	return &NotReadyError{Epoch: c.epoch, State: c.state, cause: c.err}
}
