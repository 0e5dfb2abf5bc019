package loopbridge

import (
	"fmt"
	"sync/atomic"

	"github.com/joeycumines/go-loopbridge/internal/slotpool"
	"github.com/joeycumines/logiface"
)

type (
	// Callback is the function run on the home goroutine, for a single
	// Enqueue call. The user data is passed through untouched.
	Callback func(userData any)

	// Bridge moves callbacks from any goroutine to the home goroutine, where
	// they run in the order they were enqueued. Instances must be initialized
	// using the New factory.
	Bridge struct {
		_ [0]func() // no copy

		logger   *logiface.Logger[logiface.Event]
		token    any
		onClosed func()
		policy   ReleasePolicy

		signal Signal
		pool   *slotpool.Pool[record]
		queue  *pendingQueue

		state atomic.Uint32 // BridgeState
		done  chan struct{}

		enqueued atomic.Uint64
		executed atomic.Uint64
		pumps    atomic.Uint64
		panics   atomic.Uint64
	}

	// Stats is a point in time snapshot of a Bridge.
	Stats struct {
		// Enqueued is the number of accepted Enqueue calls.
		Enqueued uint64
		// Executed is the number of callbacks that have been run.
		Executed uint64
		// Pumps is the number of drains that found at least one callback.
		Pumps uint64
		// Panics is the number of callbacks that panicked.
		Panics uint64
		// Pending is the number of callbacks waiting for the next drain.
		Pending int
		// Chunks is the number of allocated slot chunks.
		Chunks int
		// InUse is the number of slots holding a callback.
		InUse int
	}

	record struct {
		callback Callback
		userData any
	}
)

// New initializes a Bridge, registering its signal with loop.
//
// The signal stays registered until Release. The bridge must be released, to
// unregister it.
func New(loop Loop, opts ...Option) (*Bridge, error) {
	if loop == nil {
		return nil, ErrNilLoop
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		logger:   cfg.logger,
		token:    cfg.token,
		onClosed: cfg.onClosed,
		policy:   cfg.policy,
		pool: slotpool.New[record](
			slotpool.WithChunkSize(cfg.chunkSize),
			slotpool.WithMaxChunks(cfg.maxChunks),
		),
		queue: newPendingQueue(),
		done:  make(chan struct{}),
	}

	signal, err := loop.NewSignal(b.pump)
	if err != nil {
		return nil, fmt.Errorf("loopbridge: register signal: %w", err)
	}
	b.signal = signal

	b.logger.Debug().
		Int(`chunk_size`, cfg.chunkSize).
		Int(`max_chunks`, cfg.maxChunks).
		Str(`release_policy`, cfg.policy.String()).
		Log(`loopbridge: created`)

	return b, nil
}

// Enqueue schedules cb(userData) to run on the home goroutine. It may be
// called from any goroutine, including the home goroutine, in which case cb
// will run in a later pump, never the current one.
//
// Callbacks enqueued by a single goroutine run in the order they were
// enqueued, and each runs exactly once.
//
// Enqueue panics if cb is nil, or if Release has been called.
func (b *Bridge) Enqueue(cb Callback, userData any) {
	if cb == nil {
		panic(ErrNilCallback)
	}
	if state := b.State(); state != StateActive {
		panic(fmt.Errorf("%w: enqueue while %s", ErrBridgeReleased, state))
	}

	r := b.acquire()
	r.callback = cb
	r.userData = userData

	b.enqueued.Add(1)
	b.queue.push(r)

	if err := b.signal.Send(); err != nil {
		b.logger.Warning().
			Err(err).
			Limit().
			Log(`loopbridge: failed to signal home loop`)
	}
}

// Submit schedules fn to run on the home goroutine, see Enqueue.
func (b *Bridge) Submit(fn func()) {
	if fn == nil {
		panic(ErrNilCallback)
	}
	b.Enqueue(callFunc, fn)
}

func callFunc(userData any) {
	userData.(func())()
}

// Release begins teardown. The bridge is finalized later, on the home
// goroutine, once the home loop has unregistered the signal, at which point
// Done is closed.
//
// Under ReleaseRequireEmpty, Release panics with ErrPendingOnRelease if any
// callbacks are pending. Calling Release more than once panics with
// ErrBridgeReleased.
//
// If the home loop refuses to close the signal (e.g. it has terminated), the
// bridge is finalized immediately, without running pending callbacks, and
// the loop's error is returned.
func (b *Bridge) Release() error {
	if state := b.State(); state != StateActive {
		panic(fmt.Errorf("%w: release while %s", ErrBridgeReleased, state))
	}

	if b.policy == ReleaseRequireEmpty {
		if n := b.queue.len(); n != 0 {
			panic(fmt.Errorf("%w: %d pending", ErrPendingOnRelease, n))
		}
	}

	if !b.state.CompareAndSwap(uint32(StateActive), uint32(StateClosing)) {
		panic(fmt.Errorf("%w: concurrent release", ErrBridgeReleased))
	}

	b.logger.Debug().Log(`loopbridge: release requested`)

	if err := b.signal.Close(b.signalClosed); err != nil {
		b.logger.Warning().
			Err(err).
			Log(`loopbridge: home loop refused to close signal, finalizing early`)
		b.finalize()
		return fmt.Errorf("loopbridge: close signal: %w", err)
	}

	return nil
}

// Done returns a channel that is closed once the bridge is finalized.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// State returns the current lifecycle state.
func (b *Bridge) State() BridgeState {
	return BridgeState(b.state.Load())
}

// Token returns the value provided by WithToken, if any.
func (b *Bridge) Token() any {
	return b.token
}

// Stats returns a snapshot of the bridge's counters.
func (b *Bridge) Stats() Stats {
	pool := b.pool.Stats()
	return Stats{
		Enqueued: b.enqueued.Load(),
		Executed: b.executed.Load(),
		Pumps:    b.pumps.Load(),
		Panics:   b.panics.Load(),
		Pending:  b.queue.len(),
		Chunks:   pool.Chunks,
		InUse:    pool.InUse,
	}
}

// acquire allocates a record, logging before propagating any panic.
func (b *Bridge) acquire() *record {
	defer func() {
		if r := recover(); r != nil {
			if state := b.State(); state != StateActive {
				panic(fmt.Errorf("%w: enqueue while %s", ErrBridgeReleased, state))
			}
			b.logger.Crit().
				Any(`panic`, fmt.Sprint(r)).
				Log(`loopbridge: callback pool exhausted`)
			panic(r)
		}
	}()
	return b.pool.Acquire()
}

// pump runs every pending callback, in order, on the home goroutine.
func (b *Bridge) pump() {
	batch := b.queue.take()
	if batch == nil {
		return
	}
	b.pumps.Add(1)

	for batch.Length() != 0 {
		r := batch.Remove().(*record)
		b.invoke(r.callback, r.userData)
		b.pool.Release(r)
	}

	b.queue.recycle(batch)
}

func (b *Bridge) invoke(cb Callback, userData any) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logPanic(r, `loopbridge: recovered callback panic`)
		}
	}()
	b.executed.Add(1)
	cb(userData)
}

// signalClosed is called on the home goroutine, after the signal has been
// unregistered.
func (b *Bridge) signalClosed() {
	if b.policy == ReleaseDrain {
		b.pump()
	}
	b.finalize()
}

func (b *Bridge) finalize() {
	if dropped := b.queue.reset(); len(dropped) != 0 {
		for _, r := range dropped {
			b.pool.Release(r)
		}
		b.logger.Warning().
			Int(`dropped`, len(dropped)).
			Log(`loopbridge: discarded pending callbacks`)
	}

	stats := b.pool.Stats()
	b.pool.Close()

	b.state.Store(uint32(StateClosed))

	b.logger.Debug().
		Uint64(`enqueued`, b.enqueued.Load()).
		Uint64(`executed`, b.executed.Load()).
		Uint64(`pumps`, b.pumps.Load()).
		Int(`chunks`, stats.Chunks).
		Log(`loopbridge: closed`)

	if b.onClosed != nil {
		b.invokeOnClosed()
	}

	close(b.done)
}

func (b *Bridge) invokeOnClosed() {
	defer func() {
		if r := recover(); r != nil {
			b.logPanic(r, `loopbridge: recovered panic in close callback`)
		}
	}()
	b.onClosed()
}

// logPanic reports a recovered panic value, rate limited.
func (b *Bridge) logPanic(r any, msg string) {
	builder := b.logger.Err()
	if err, ok := r.(error); ok {
		builder = builder.Err(err)
	} else {
		builder = builder.Any(`panic`, r)
	}
	builder.Limit().Log(msg)
}
