// Package lifecycle owns a single live instance of an expensive, asynchronously
// constructed resource and recreates it whenever its configuration changes.
//
// # Model
//
// A Controller holds zero or one current handle. Every call to Reconfigure
// mints a new Epoch before any asynchronous work starts, retires the current
// handle (callers observe "not ready" immediately) and constructs a new one on
// a background goroutine:
//
//	ctrl := lifecycle.New(build, destroy)
//	epoch, _ := ctrl.Reconfigure(cfg)
//
//	err := ctrl.Do(ctx, func(ctx context.Context, h *Thing) error {
//	    return h.Work(ctx)
//	})
//	if errors.Is(err, lifecycle.ErrNotReady) {
//	    // reconfiguration in progress or construction failed
//	}
//
//	_ = ctrl.Teardown(ctx)
//
// # Epoch fencing
//
// Constructions and destructions complete in any order. A construction
// started under epoch e only installs its handle if the controller is still at
// epoch e when it finishes; otherwise the handle is destroyed without ever
// being exposed. There is no preemption of running constructions.
//
// # Borrowing
//
// Do and Call lease the current handle for the duration of one call. A
// retired handle is destroyed only after every lease taken on it has been
// released. Destructions run one after another, and the next construction
// starts only after every earlier destruction has completed, so the old and
// new instance do not share their backing storage. A destroy that outlives
// the destroy timeout (see WithDestroyTimeout) stops holding up later
// constructions. Teardown still waits for it.
//
// # States
//
//	Uninitialized -> Constructing -> Ready
//	Ready         -> Constructing      (Reconfigure)
//	Constructing  -> Failed            (construction error at the active epoch)
//	Failed        -> Constructing      (Reconfigure)
//	*             -> Destroyed         (Teardown, terminal)
package lifecycle
